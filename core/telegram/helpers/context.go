// Package helpers bridges tele.Context and the logger's context.Context.
package helpers

import (
	"context"

	"github.com/m3rciful/exchangebot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// slot in tele.Context that holds the per-update context.Context.
const ctxSlot = "update_ctx"

// Meta identifies one update in logs.
type Meta struct {
	UpdateID int
	UserID   int64
	ChatID   int64
}

// MetaOf extracts identifiers from c. An inline callback carries no chat,
// so the sender's private chat is used instead.
func MetaOf(c tele.Context) Meta {
	m := Meta{UpdateID: c.Update().ID}
	if u := c.Sender(); u != nil {
		m.UserID = u.ID
	}
	if ch := c.Chat(); ch != nil {
		m.ChatID = ch.ID
	} else {
		m.ChatID = m.UserID
	}
	return m
}

// StoreContext caches ctx on c for later handlers.
func StoreContext(c tele.Context, ctx context.Context) {
	if c != nil && ctx != nil {
		c.Set(ctxSlot, ctx)
	}
}

// ContextFrom returns the cached context, if any.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(ctxSlot).(context.Context)
	return ctx, ok && ctx != nil
}

// BuildContext returns the update's context, creating it on first use with
// the correlation id and update metadata attached.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := ContextFrom(c); ok {
		return ctx
	}
	m := MetaOf(c)
	ctx := logger.WithRID(context.Background(), logger.BuildRID(m.UpdateID, m.ChatID, m.UserID))
	ctx = logger.WithUpdateMeta(ctx, m.UpdateID, m.UserID, m.ChatID)
	ctx = logger.WithLogger(ctx, logger.TG)
	StoreContext(c, ctx)
	return ctx
}

// WithHandler tags the cached context with the handler name.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler != "" {
		ctx = logger.WithHandler(ctx, handler)
		StoreContext(c, ctx)
	}
	return ctx
}
