// Package conversation keeps the per-user flow state that turns a series of
// chat messages into one multi-step interaction.
package conversation

import (
	"context"
	"time"

	"github.com/m3rciful/exchangebot/internal/chat"
)

// Action names the active flow. The zero value is Idle.
type Action string

const (
	Idle                      Action = ""
	AwaitingFileID            Action = "awaiting_file_id"
	AwaitingKeyword           Action = "awaiting_keyword"
	CollectingContent         Action = "collecting_content"
	AwaitingOrderNumber       Action = "awaiting_order_number"
	AwaitingVerificationPhoto Action = "awaiting_verification_photo"
)

// Actions lists every non-idle action.
func Actions() []Action {
	return []Action{AwaitingFileID, AwaitingKeyword, CollectingContent, AwaitingOrderNumber, AwaitingVerificationPhoto}
}

// AdminOnly reports whether only the admin may enter a.
func (a Action) AdminOnly() bool {
	switch a {
	case AwaitingFileID, AwaitingKeyword, CollectingContent:
		return true
	default:
		return false
	}
}

// State is the stored flow marker plus its accumulator.
type State struct {
	Action    Action     `json:"action"`
	ChatID    int64      `json:"chat_id"`
	Keyword   string     `json:"keyword,omitempty"`
	Items     chat.Items `json:"items,omitempty"`
	Attempts  int        `json:"attempts,omitempty"`
	Tier      int        `json:"tier,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Store persists one State per user. Get reports found=false for missing or
// expired entries; Put refreshes the expiry.
type Store interface {
	Get(ctx context.Context, userID int64) (State, bool, error)
	Put(ctx context.Context, userID int64, s State, ttl time.Duration) error
	Clear(ctx context.Context, userID int64) error
}
