package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/exchangebot/core/logger"
	"github.com/m3rciful/exchangebot/internal/chat"
	"github.com/m3rciful/exchangebot/internal/product"
	"github.com/m3rciful/exchangebot/internal/quota"
	"github.com/m3rciful/exchangebot/internal/review"
)

// redeem looks the keyword up first so unknown keywords consume nothing,
// then asks the quota engine and delivers the first page.
func (a *App) redeem(ctx context.Context, ev chat.Event, keyword string) error {
	kw := product.NormalizeKeyword(keyword)
	if kw == "" {
		a.say(ctx, ev.ChatID, "Send a keyword to receive its content.", nil)
		return nil
	}
	p, ok, err := a.products.Get(ctx, kw)
	if err != nil {
		return fmt.Errorf("load product %q: %w", kw, err)
	}
	if !ok {
		a.say(ctx, ev.ChatID, "Unknown keyword. Send /start to see the menu.", nil)
		return nil
	}

	now := a.now()
	dec, err := a.quota.CheckAndConsume(ctx, ev.UserID, now)
	if err != nil {
		return err
	}
	logger.LogEvent(ctx, a.log, slog.LevelInfo, "bot.redeem",
		slog.String("keyword", kw),
		slog.String("outcome", string(dec.Outcome)),
		slog.String("reason", string(dec.Reason)),
		slog.Int("daily_count", dec.Record.AttemptCount),
	)
	if !dec.Permitted() {
		a.say(ctx, ev.ChatID, deniedText(dec), nil)
		return nil
	}

	if _, err := a.deliverer.Deliver(ctx, ev.ChatID, p, 0); err != nil {
		return err
	}
	if dec.Outcome == quota.AllowedWithCooldownTrigger && !dec.Record.CooldownUntil.IsZero() {
		wait := dec.Record.CooldownUntil.Sub(now)
		a.say(ctx, ev.ChatID, fmt.Sprintf("Your free redemptions for today are used up. The next redemption is available in %s.", humanDuration(wait)), nil)
	}
	return nil
}

func deniedText(dec quota.Decision) string {
	switch dec.Reason {
	case quota.ReasonDailyCapReached:
		return "You have reached today's redemption limit. Come back tomorrow or upgrade to VIP with /vip."
	case quota.ReasonCooling:
		return fmt.Sprintf("Please wait %s before the next redemption, or upgrade to VIP with /vip.", humanDuration(dec.RetryAfter))
	default:
		return "Redemption is not available right now."
	}
}

// humanDuration rounds up to whole minutes, with seconds under a minute.
func humanDuration(d time.Duration) string {
	if d <= 0 {
		return "a moment"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int((d+time.Second-1)/time.Second))
	}
	minutes := int((d + time.Minute - 1) / time.Minute)
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}

func (a *App) onMore(ctx context.Context, ev chat.Event) error {
	kw, offset, err := product.ParseMorePayload(ev.Callback.Payload)
	if err != nil {
		a.answer(ctx, ev, "This button is no longer active.")
		return nil
	}
	p, ok, err := a.products.Get(ctx, kw)
	if err != nil {
		return fmt.Errorf("load product %q: %w", kw, err)
	}
	if !ok || offset >= len(p.Items) {
		a.answer(ctx, ev, "This content is no longer available.")
		return nil
	}
	a.answer(ctx, ev, "")
	if ev.Callback.MessageID != 0 {
		_ = a.messenger.EditMessage(ctx, ev.ChatID, ev.Callback.MessageID, "", nil)
	}
	_, err = a.deliverer.Deliver(ctx, ev.ChatID, p, offset)
	return err
}

func (a *App) onReview(ctx context.Context, ev chat.Event) error {
	if !a.isAdmin(ev.UserID) {
		a.answer(ctx, ev, "Only the administrator can review.")
		return nil
	}
	d, ticketID, ok := review.ParseButtonPayload(ev.Callback.Payload)
	if !ok {
		a.answer(ctx, ev, "Malformed review button.")
		return nil
	}

	t, err := a.reviews.Decide(ctx, ticketID, d)
	switch {
	case errors.Is(err, review.ErrNotFound):
		a.answer(ctx, ev, "Ticket not found.")
		a.closeReview(ctx, ev, "")
		return nil
	case errors.Is(err, review.ErrAlreadyDecided):
		a.answer(ctx, ev, "This ticket was already decided.")
		a.closeReview(ctx, ev, "")
		return nil
	case err != nil:
		return err
	}

	label := string(t.Status)
	if d == review.Delete {
		label = "deleted"
	}
	a.answer(ctx, ev, "Ticket "+label+".")
	a.closeReview(ctx, ev, ticketSummary(t)+"\nStatus: "+strings.ToUpper(label))
	return nil
}

// closeReview removes the decision buttons. Photo tickets have no text to
// edit, so a failed text edit falls back to dropping the keyboard only.
func (a *App) closeReview(ctx context.Context, ev chat.Event, text string) {
	if ev.Callback.MessageID == 0 {
		return
	}
	if text != "" {
		if err := a.messenger.EditMessage(ctx, ev.ChatID, ev.Callback.MessageID, text, nil); err == nil {
			return
		}
	}
	if err := a.messenger.EditMessage(ctx, ev.ChatID, ev.Callback.MessageID, "", nil); err != nil {
		logger.LogEvent(ctx, a.log, slog.LevelWarn, "bot.review_edit_failed", logger.Err(err))
	}
}
