// Package review runs the admin approval queue for VIP orders and verification photos.
package review

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/m3rciful/exchangebot/internal/chat"
)

var (
	ErrNotFound       = errors.New("review: ticket not found")
	ErrAlreadyDecided = errors.New("review: ticket already decided")
	// ErrManualReview means the user reached the reject threshold.
	ErrManualReview = errors.New("review: manual review required")
	// ErrAlreadyPending means a verification for the user is still undecided.
	ErrAlreadyPending = errors.New("review: verification already pending")
)

// Kind is what the ticket asks the admin to approve.
type Kind string

const (
	KindOrder        Kind = "order"
	KindVerification Kind = "verification"
)

// Status is the ticket lifecycle state. Deleted tickets are removed from the store.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusBanned   Status = "banned"
)

// Decision is an admin verdict on a pending ticket.
type Decision string

const (
	Approve Decision = "approve"
	Reject  Decision = "reject"
	Ban     Decision = "ban"
	Delete  Decision = "delete"
)

// Decisions lists every verdict in keyboard order.
var Decisions = []Decision{Approve, Reject, Ban, Delete}

// ParseDecision maps a button payload to a Decision.
func ParseDecision(s string) (Decision, bool) {
	for _, d := range Decisions {
		if string(d) == s {
			return d, true
		}
	}
	return "", false
}

func (d Decision) status() Status {
	switch d {
	case Approve:
		return StatusApproved
	case Reject:
		return StatusRejected
	case Ban:
		return StatusBanned
	default:
		return ""
	}
}

// Ticket is one item in the review queue.
type Ticket struct {
	ID          string
	UserID      int64
	ChatID      int64
	Kind        Kind
	OrderNumber string
	Tier        int
	FileID      string
	Status      Status
	CreatedAt   time.Time
	DecidedAt   *time.Time
}

// Store persists tickets. Transition moves a ticket out of StatusPending
// and returns ErrAlreadyDecided when it is no longer pending.
type Store interface {
	Create(ctx context.Context, t Ticket) error
	Get(ctx context.Context, id string) (Ticket, error)
	Transition(ctx context.Context, id string, to Status, at time.Time) (Ticket, error)
	Delete(ctx context.Context, id string) error
	ListPending(ctx context.Context, limit int) ([]Ticket, error)
}

// ButtonPayload encodes a decision button as "decision:ticketID".
func ButtonPayload(d Decision, ticketID string) string {
	return string(d) + ":" + ticketID
}

// ParseButtonPayload decodes ButtonPayload output.
func ParseButtonPayload(payload string) (Decision, string, bool) {
	raw, id, ok := strings.Cut(payload, ":")
	if !ok || id == "" {
		return "", "", false
	}
	d, ok := ParseDecision(raw)
	return d, id, ok
}

// Keyboard renders the admin controls for ticketID.
func Keyboard(ticketID string) *chat.Keyboard {
	labels := map[Decision]string{Approve: "Approve", Reject: "Reject", Ban: "Ban", Delete: "Delete"}
	kb := &chat.Keyboard{}
	row := make([]chat.Button, 0, len(Decisions))
	for _, d := range Decisions {
		row = append(row, chat.Button{Text: labels[d], Action: chat.ActionReview, Payload: ButtonPayload(d, ticketID)})
	}
	return kb.Row(row...)
}
