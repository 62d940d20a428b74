package middleware

import (
	"log/slog"

	"github.com/m3rciful/exchangebot/core/logger"
	tghelpers "github.com/m3rciful/exchangebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// AdminOptions configure AdminOnlyMiddleware.
type AdminOptions struct {
	AdminID int64
	// Command is logged when a non-admin is turned away.
	Command  string
	OnReject tele.HandlerFunc
}

// IsAdmin reports whether the update comes from adminID. Zero matches nobody.
func IsAdmin(c tele.Context, adminID int64) bool {
	if adminID == 0 {
		return false
	}
	u := c.Sender()
	return u != nil && u.ID == adminID
}

// AdminOnlyMiddleware runs next for the admin only. Everyone else gets
// OnReject, or silence when it is nil.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if IsAdmin(c, opts.AdminID) {
				return next(c)
			}
			logger.LogEvent(tghelpers.BuildContext(c), logger.TG, slog.LevelWarn, "access.denied",
				slog.String("status", "denied"),
				slog.String("op", opts.Command),
			)
			if opts.OnReject == nil {
				return nil
			}
			return opts.OnReject(c)
		}
	}
}
