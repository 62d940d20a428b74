package product

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/exchangebot/core/logger"
	"github.com/m3rciful/exchangebot/internal/chat"
)

// DeliveryObserver counts sent and failed items.
type DeliveryObserver interface {
	ObserveDelivery(ok bool)
}

// Deliverer sends product items in order, one page per call.
type Deliverer struct {
	messenger chat.Messenger
	pageSize  int
	delay     time.Duration
	sleep     func(context.Context, time.Duration) error
	observer  DeliveryObserver
	log       *slog.Logger
}

// NewDeliverer returns a deliverer sending pageSize items per call with delay between items.
func NewDeliverer(m chat.Messenger, pageSize int, delay time.Duration, obs DeliveryObserver) *Deliverer {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Deliverer{
		messenger: m,
		pageSize:  pageSize,
		delay:     delay,
		sleep:     sleepCtx,
		observer:  obs,
		log:       logger.Component("service.delivery"),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Page is the result of one Deliver call.
type Page struct {
	Sent   int
	Failed int
	// Next is the offset of the first unsent item, or -1 when done.
	Next int
}

// Deliver sends p.Items[offset:offset+pageSize] to chatID. A failed item is
// logged and skipped. When items remain, a "more" button is sent.
func (d *Deliverer) Deliver(ctx context.Context, chatID int64, p Product, offset int) (Page, error) {
	if offset < 0 || offset >= len(p.Items) {
		return Page{Next: -1}, fmt.Errorf("product %q: offset %d out of range", p.Keyword, offset)
	}
	end := min(offset+d.pageSize, len(p.Items))
	page := Page{Next: -1}
	for i := offset; i < end; i++ {
		if i > offset {
			if err := d.sleep(ctx, d.delay); err != nil {
				return page, err
			}
		}
		_, err := d.messenger.SendMedia(ctx, chatID, p.Items[i], nil)
		if d.observer != nil {
			d.observer.ObserveDelivery(err == nil)
		}
		if err != nil {
			page.Failed++
			logger.LogEvent(ctx, d.log, slog.LevelWarn, "delivery.item_failed",
				slog.String("keyword", p.Keyword),
				slog.Int("item", i),
				slog.String("kind", string(p.Items[i].Kind())),
				slog.String("err", err.Error()),
			)
			continue
		}
		page.Sent++
	}

	if end < len(p.Items) {
		page.Next = end
		kb := (&chat.Keyboard{}).Row(chat.Button{
			Text:    fmt.Sprintf("More (%d left)", len(p.Items)-end),
			Action:  chat.ActionMore,
			Payload: MorePayload(p.Keyword, end),
		})
		if _, err := d.messenger.SendText(ctx, chatID, "Tap to receive the next part.", kb); err != nil {
			return page, fmt.Errorf("send more button: %w", err)
		}
	}
	logger.LogEvent(ctx, d.log, slog.LevelInfo, "delivery.page",
		slog.String("keyword", p.Keyword),
		slog.Int("items", len(p.Items)),
		slog.Int("offset", offset),
		slog.Int("sent", page.Sent),
		slog.Int("failed", page.Failed),
		slog.Int("next", page.Next),
	)
	return page, nil
}

// MorePayload encodes a resume point for the "more" button.
func MorePayload(keyword string, offset int) string {
	return strconv.Itoa(offset) + ":" + keyword
}

// ParseMorePayload decodes MorePayload output.
func ParseMorePayload(payload string) (keyword string, offset int, err error) {
	rawOffset, keyword, ok := strings.Cut(payload, ":")
	if !ok || keyword == "" {
		return "", 0, fmt.Errorf("product: malformed resume payload %q", payload)
	}
	offset, err = strconv.Atoi(rawOffset)
	if err != nil || offset < 0 {
		return "", 0, fmt.Errorf("product: malformed resume offset %q", rawOffset)
	}
	return keyword, offset, nil
}
