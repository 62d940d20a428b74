package router

import (
	"log/slog"
	"strings"

	"github.com/m3rciful/exchangebot/core/logger"
	tg "github.com/m3rciful/exchangebot/core/telegram"
	"github.com/m3rciful/exchangebot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// commandName extracts "/name" from "/Name@bot args".
func commandName(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	head, _, _ := strings.Cut(text, " ")
	head, _, _ = strings.Cut(head, "@")
	if len(head) < 2 {
		return "", false
	}
	return strings.ToLower(head), true
}

// resolveCommand looks the command up and applies the admin check.
func resolveCommand(reg *tg.Registry, opts Options, text string) (string, tele.HandlerFunc, bool) {
	name, ok := commandName(text)
	if !ok || reg == nil {
		return "", nil, false
	}
	key, cmd, ok := reg.LookupCommand(name)
	if !ok || cmd.Handler == nil {
		return "", nil, false
	}
	h := cmd.Handler
	if cmd.AdminOnly {
		h = middleware.AdminOnlyMiddleware(middleware.AdminOptions{
			AdminID:  opts.AdminID,
			Command:  key,
			OnReject: opts.OnAdminReject,
		})(h)
	}
	return key, h, true
}

// LogWiring writes the registry summary once routes are installed.
func LogWiring(reg *tg.Registry) {
	logger.TWire.Info("tg.wire",
		slog.String("event", "complete"),
		slog.Int("commands", len(reg.Commands())),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
}
