package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/exchangebot/internal/review"
)

// Tickets is a review.Store. Ticket ids are UUIDs; any other id is not found.
type Tickets struct {
	db *sqlx.DB
}

type ticketRow struct {
	ID          string       `db:"id"`
	UserID      int64        `db:"user_id"`
	ChatID      int64        `db:"chat_id"`
	Kind        string       `db:"kind"`
	OrderNumber string       `db:"order_number"`
	Tier        int          `db:"tier"`
	FileID      string       `db:"file_id"`
	Status      string       `db:"status"`
	CreatedAt   time.Time    `db:"created_at"`
	DecidedAt   sql.NullTime `db:"decided_at"`
}

func (r ticketRow) ticket() review.Ticket {
	t := review.Ticket{
		ID:          r.ID,
		UserID:      r.UserID,
		ChatID:      r.ChatID,
		Kind:        review.Kind(r.Kind),
		OrderNumber: r.OrderNumber,
		Tier:        r.Tier,
		FileID:      r.FileID,
		Status:      review.Status(r.Status),
		CreatedAt:   r.CreatedAt,
	}
	if r.DecidedAt.Valid {
		at := r.DecidedAt.Time
		t.DecidedAt = &at
	}
	return t
}

const ticketColumns = `id::text AS id, user_id, chat_id, kind, order_number, tier, file_id, status, created_at, decided_at`

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *Tickets) Create(ctx context.Context, t review.Ticket) error {
	if t.Status == "" {
		t.Status = review.StatusPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO review_tickets (id, user_id, chat_id, kind, order_number, tier, file_id, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.UserID, t.ChatID, string(t.Kind), t.OrderNumber, t.Tier, t.FileID, string(t.Status), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("create ticket %s: %w", t.ID, err)
	}
	return nil
}

func (s *Tickets) Get(ctx context.Context, id string) (review.Ticket, error) {
	if !validID(id) {
		return review.Ticket{}, review.ErrNotFound
	}
	var row ticketRow
	err := s.db.GetContext(ctx, &row, `SELECT `+ticketColumns+` FROM review_tickets WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return review.Ticket{}, review.ErrNotFound
	}
	if err != nil {
		return review.Ticket{}, fmt.Errorf("get ticket %s: %w", id, err)
	}
	return row.ticket(), nil
}

// Transition only updates a pending row, so concurrent decisions apply once.
func (s *Tickets) Transition(ctx context.Context, id string, to review.Status, at time.Time) (review.Ticket, error) {
	if !validID(id) {
		return review.Ticket{}, review.ErrNotFound
	}
	var row ticketRow
	err := s.db.GetContext(ctx, &row, `
UPDATE review_tickets SET status = $2, decided_at = $3
WHERE id = $1 AND status = 'pending'
RETURNING `+ticketColumns, id, string(to), at)
	if err == nil {
		return row.ticket(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return review.Ticket{}, fmt.Errorf("transition ticket %s: %w", id, err)
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return review.Ticket{}, err
	}
	return current, review.ErrAlreadyDecided
}

func (s *Tickets) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return review.ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM review_tickets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete ticket %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return review.ErrNotFound
	}
	return nil
}

func (s *Tickets) ListPending(ctx context.Context, limit int) ([]review.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM review_tickets WHERE status = 'pending' ORDER BY created_at`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	var rows []ticketRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list pending tickets: %w", err)
	}
	out := make([]review.Ticket, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ticket())
	}
	return out, nil
}
