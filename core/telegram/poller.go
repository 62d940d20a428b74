package telegram

import (
	"net"
	"strconv"
	"time"

	coreconfig "github.com/m3rciful/exchangebot/core/config"

	tele "gopkg.in/telebot.v4"
)

const defaultPollTimeout = 10 * time.Second

// Updates the bot subscribes to. Everything else is dropped by Telegram.
var allowedUpdates = []string{"message", "callback_query"}

// BuildPoller picks the update source for cfg.Telegram.RunMode.
// Config must already be normalized.
func BuildPoller(cfg *coreconfig.Config) tele.Poller {
	if cfg.Telegram.RunMode == coreconfig.RunModeWebhook {
		return &tele.Webhook{
			Listen:         net.JoinHostPort(cfg.Webhook.Listen, strconv.Itoa(cfg.Webhook.Port)),
			AllowedUpdates: allowedUpdates,
			Endpoint:       &tele.WebhookEndpoint{PublicURL: cfg.Webhook.URL},
		}
	}
	return &tele.LongPoller{
		Timeout:        pollTimeout(cfg.Telegram.LongPollTimeoutSeconds),
		AllowedUpdates: allowedUpdates,
	}
}

func pollTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		return defaultPollTimeout
	}
	return time.Duration(seconds) * time.Second
}
