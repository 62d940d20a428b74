package middleware

import (
	"context"
	"sync/atomic"
	"time"

	tghelpers "github.com/m3rciful/exchangebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// UpdateObserver receives one sample per handled update.
type UpdateObserver interface {
	ObserveUpdate(kind, status string, took time.Duration, messages int)
}

type counters struct {
	messages atomic.Int32
	kb       atomic.Bool
}

type countersKey struct{}

const countersSlot = "counters"

// MessageMetricsMiddleware attaches per-update send counters. Senders report
// through CountSent with the context from helpers.BuildContext.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		cnt := &counters{}
		c.Set(countersSlot, cnt)
		ctx := context.WithValue(tghelpers.BuildContext(c), countersKey{}, cnt)
		tghelpers.StoreContext(c, ctx)
		return next(c)
	}
}

// CountSent records one outgoing message for the update carried by ctx.
func CountSent(ctx context.Context, hasKB bool) {
	if ctx == nil {
		return
	}
	cnt, ok := ctx.Value(countersKey{}).(*counters)
	if !ok {
		return
	}
	cnt.messages.Add(1)
	if hasKB {
		cnt.kb.Store(true)
	}
}

// GetCounters reads message count and keyboard presence flags from context.
func GetCounters(c tele.Context) (int, bool) {
	cnt, ok := c.Get(countersSlot).(*counters)
	if !ok {
		return 0, false
	}
	return int(cnt.messages.Load()), cnt.kb.Load()
}

// UpdateKind classifies the update for logs and metrics.
func UpdateKind(c tele.Context) string {
	upd := c.Update()
	if upd.Callback != nil {
		return "callback"
	}
	m := upd.Message
	if m == nil {
		return "other"
	}
	switch {
	case m.Photo != nil, m.Video != nil, m.Document != nil, m.Audio != nil, m.Voice != nil, m.Sticker != nil:
		return "media"
	case len(m.Text) > 0 && m.Text[0] == '/':
		return "command"
	default:
		return "text"
	}
}
