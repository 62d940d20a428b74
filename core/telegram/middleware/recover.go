package middleware

import (
	"bytes"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/exchangebot/core/logger"
	tghelpers "github.com/m3rciful/exchangebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

const panicStackLines = 32

// RecoverMiddleware converts a handler panic into an error. A panicking
// callback is still answered so the client drops its loading state.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			ctx := tghelpers.BuildContext(c)
			logger.LogEvent(ctx, logger.TG, slog.LevelError, "tg.panic",
				slog.String("status", "fail"),
				slog.String("handler", logger.HandlerFrom(ctx)),
				slog.String("op", UpdateKind(c)),
				slog.String("cause", fmt.Sprint(r)),
				slog.String("stack", headLines(debug.Stack(), panicStackLines)),
			)
			if c.Callback() != nil {
				_ = c.Respond()
			}
			err = fmt.Errorf("telegram: handler panic: %v", r)
		}()
		return next(c)
	}
}

func headLines(b []byte, n int) string {
	idx := 0
	for i := 0; i < n; i++ {
		next := bytes.IndexByte(b[idx:], '\n')
		if next < 0 {
			return string(b)
		}
		idx += next + 1
	}
	return string(b[:idx])
}
