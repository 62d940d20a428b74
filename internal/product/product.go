// Package product holds keyword-addressed content packages and their paged delivery.
package product

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/m3rciful/exchangebot/internal/chat"
)

// MaxKeywordBytes bounds a normalized keyword so the "more" button's
// callback data stays within Telegram's 64-byte limit.
const MaxKeywordBytes = 48

var (
	// ErrEmpty is returned when saving a product without keyword or items.
	ErrEmpty = errors.New("product: keyword and at least one item are required")
	// ErrKeywordTooLong is returned for keywords over MaxKeywordBytes.
	ErrKeywordTooLong = fmt.Errorf("product: keyword longer than %d bytes", MaxKeywordBytes)
)

// Product is an ordered list of content items addressed by keyword.
type Product struct {
	Keyword   string
	Items     chat.Items
	CreatedAt time.Time
}

// Store persists products. Save replaces any product with the same keyword.
type Store interface {
	Save(ctx context.Context, p Product) error
	Get(ctx context.Context, keyword string) (Product, bool, error)
	List(ctx context.Context) ([]Product, error)
	Delete(ctx context.Context, keyword string) (bool, error)
}

// NormalizeKeyword is the lookup form of a keyword.
func NormalizeKeyword(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// CheckKeyword validates an already normalized keyword.
func CheckKeyword(keyword string) error {
	switch {
	case keyword == "":
		return ErrEmpty
	case len(keyword) > MaxKeywordBytes:
		return ErrKeywordTooLong
	}
	return nil
}

// Validate normalizes p.Keyword and checks that p can be stored.
func (p *Product) Validate() error {
	p.Keyword = NormalizeKeyword(p.Keyword)
	if err := CheckKeyword(p.Keyword); err != nil {
		return err
	}
	if len(p.Items) == 0 {
		return ErrEmpty
	}
	for _, it := range p.Items {
		if it == nil {
			return ErrEmpty
		}
	}
	return nil
}
