package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/exchangebot/internal/user"
)

// Users is a user.Store. Updates on an unknown id are no-ops.
type Users struct {
	db *sqlx.DB
}

type userRow struct {
	ID            int64     `db:"id"`
	Username      string    `db:"username"`
	FirstSeenDate string    `db:"first_seen_date"`
	IsVIP         bool      `db:"is_vip"`
	VIPPending    bool      `db:"vip_pending"`
	Banned        bool      `db:"banned"`
	RejectCount   int       `db:"reject_count"`
	Tier1Passed   bool      `db:"tier1_passed"`
	Tier2Passed   bool      `db:"tier2_passed"`
	VerifyPending int       `db:"verify_pending"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r userRow) profile() user.Profile {
	return user.Profile{
		ID:            r.ID,
		Username:      r.Username,
		FirstSeenDate: r.FirstSeenDate,
		IsVIP:         r.IsVIP,
		VIPPending:    r.VIPPending,
		Banned:        r.Banned,
		RejectCount:   r.RejectCount,
		Tier1Passed:   r.Tier1Passed,
		Tier2Passed:   r.Tier2Passed,
		VerifyPending: r.VerifyPending,
		CreatedAt:     r.CreatedAt,
	}
}

const userColumns = `id, username, to_char(first_seen_date, '` + dayFormat + `') AS first_seen_date,
    is_vip, vip_pending, banned, reject_count, tier1_passed, tier2_passed, verify_pending, created_at`

func (s *Users) Touch(ctx context.Context, id int64, username, firstSeen string) (user.Profile, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `
INSERT INTO users (id, username, first_seen_date)
VALUES ($1, $2, $3::date)
ON CONFLICT (id) DO UPDATE SET
    username = CASE WHEN EXCLUDED.username <> '' THEN EXCLUDED.username ELSE users.username END
RETURNING `+userColumns, id, username, firstSeen)
	if err != nil {
		return user.Profile{}, fmt.Errorf("touch user %d: %w", id, err)
	}
	return row.profile(), nil
}

func (s *Users) Get(ctx context.Context, id int64) (user.Profile, bool, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return user.Profile{ID: id}, false, nil
	}
	if err != nil {
		return user.Profile{}, false, fmt.Errorf("get user %d: %w", id, err)
	}
	return row.profile(), true, nil
}

func (s *Users) SetVIPPending(ctx context.Context, id int64, pending bool) error {
	return s.exec(ctx, "set vip pending", `UPDATE users SET vip_pending = $2 WHERE id = $1`, id, pending)
}

func (s *Users) SetBanned(ctx context.Context, id int64, banned bool) error {
	return s.exec(ctx, "set banned", `UPDATE users SET banned = $2 WHERE id = $1`, id, banned)
}

func (s *Users) IncrementRejects(ctx context.Context, id int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `UPDATE users SET reject_count = reject_count + 1 WHERE id = $1 RETURNING reject_count`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("increment rejects %d: %w", id, err)
	}
	return n, nil
}

func (s *Users) SetTierPassed(ctx context.Context, id int64, tier int) error {
	switch tier {
	case 1:
		return s.exec(ctx, "set tier", `UPDATE users SET tier1_passed = TRUE WHERE id = $1`, id)
	case 2:
		return s.exec(ctx, "set tier", `UPDATE users SET tier2_passed = TRUE WHERE id = $1`, id)
	default:
		return fmt.Errorf("set tier %d: unknown tier %d", id, tier)
	}
}

func (s *Users) SetVerifyPending(ctx context.Context, id int64, tier int) error {
	return s.exec(ctx, "set verify pending", `UPDATE users SET verify_pending = $2 WHERE id = $1`, id, tier)
}

func (s *Users) exec(ctx context.Context, op, query string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s %v: %w", op, args[0], err)
	}
	return nil
}
