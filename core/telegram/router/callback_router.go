package router

import (
	"log/slog"

	tg "github.com/m3rciful/exchangebot/core/telegram"
	"github.com/m3rciful/exchangebot/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

// CallbackRoute sends button presses through the interceptors, then the
// registry. Handlers answer the callback themselves.
func CallbackRoute(reg *tg.Registry, opts Options) tg.Route {
	handler := func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil {
			return nil
		}
		key, _ := callbacks.ParseCallbackData(cb)
		s := begin(c, opts, slog.String("cb_key", key))
		if name, handled, err := opts.intercept(c); handled {
			s.finish(name, "", err)
			return err
		}

		name := "callback." + handlerName(key)
		if h, ok := reg.GetCallback(key); ok && h != nil {
			return s.run(name, h)
		}
		s.extras = append(s.extras, slog.String("reason", "not_found"))
		if opts.UnknownCallback != nil {
			return s.run(name, opts.UnknownCallback)
		}
		return s.run(name, reg.CallbackNotFound())
	}
	return tg.Route{Endpoint: tele.OnCallback, Handler: handler}
}
