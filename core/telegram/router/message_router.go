package router

import (
	tg "github.com/m3rciful/exchangebot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// mediaEndpoints are the message kinds that reach the interceptors like text.
var mediaEndpoints = []string{
	tele.OnPhoto,
	tele.OnVideo,
	tele.OnDocument,
	tele.OnAudio,
	tele.OnVoice,
	tele.OnSticker,
}

// MessageRoutes builds the text and media routes. Commands are not
// telebot endpoints, so they pass the interceptors too.
func MessageRoutes(reg *tg.Registry, opts Options) []tg.Route {
	text := func(c tele.Context) error {
		s := begin(c, opts)
		if name, handled, err := opts.intercept(c); handled {
			s.finish(name, "", err)
			return err
		}
		if key, h, ok := resolveCommand(reg, opts, c.Text()); ok {
			return s.run(handlerName(key), h)
		}
		if _, ok := commandName(c.Text()); ok {
			return s.run("unknown_command", opts.UnknownCommand)
		}
		var fallback tele.HandlerFunc
		if reg != nil {
			fallback = reg.TextFallback()
		}
		return s.run("fallback", fallback)
	}

	media := func(c tele.Context) error {
		s := begin(c, opts)
		if name, handled, err := opts.intercept(c); handled {
			s.finish(name, "", err)
			return err
		}
		return s.run("unexpected_media", opts.UnknownMedia)
	}

	routes := make([]tg.Route, 0, len(mediaEndpoints)+1)
	routes = append(routes, tg.Route{Endpoint: tele.OnText, Handler: text})
	for _, ep := range mediaEndpoints {
		routes = append(routes, tg.Route{Endpoint: ep, Handler: media})
	}
	return routes
}
