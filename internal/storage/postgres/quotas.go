package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/exchangebot/internal/quota"
)

// Quotas is a quota.Store over users and user_quotas.
type Quotas struct {
	db *sqlx.DB
}

type quotaRow struct {
	UserID        int64        `db:"user_id"`
	FirstSeenDate string       `db:"first_seen_date"`
	IsVIP         bool         `db:"is_vip"`
	DateKey       string       `db:"date_key"`
	AttemptCount  int          `db:"attempt_count"`
	FreeCount     int          `db:"free_count"`
	CooldownLevel int          `db:"cooldown_level"`
	CooldownUntil sql.NullTime `db:"cooldown_until"`
}

const loadQuota = `
SELECT u.id AS user_id,
       to_char(u.first_seen_date, '` + dayFormat + `') AS first_seen_date,
       u.is_vip,
       COALESCE(to_char(q.date_key, '` + dayFormat + `'), '') AS date_key,
       COALESCE(q.attempt_count, 0) AS attempt_count,
       COALESCE(q.free_count, 0) AS free_count,
       COALESCE(q.cooldown_level, 0) AS cooldown_level,
       q.cooldown_until
FROM users u
LEFT JOIN user_quotas q ON q.user_id = u.id
WHERE u.id = $1`

func (s *Quotas) Load(ctx context.Context, userID int64) (quota.Record, bool, error) {
	var row quotaRow
	err := s.db.GetContext(ctx, &row, loadQuota, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return quota.Record{}, false, nil
	}
	if err != nil {
		return quota.Record{}, false, fmt.Errorf("load quota %d: %w", userID, err)
	}
	rec := quota.Record{
		UserID:        row.UserID,
		DateKey:       row.DateKey,
		AttemptCount:  row.AttemptCount,
		FreeCount:     row.FreeCount,
		CooldownLevel: row.CooldownLevel,
		IsVIP:         row.IsVIP,
		FirstSeenDate: row.FirstSeenDate,
	}
	if row.CooldownUntil.Valid {
		rec.CooldownUntil = row.CooldownUntil.Time
	}
	return rec, true, nil
}

// saveQuota creates the user row when missing and upserts the day counters
// in one statement.
const saveQuota = `
WITH ensured AS (
    INSERT INTO users (id, first_seen_date)
    VALUES ($1, COALESCE(NULLIF($2, '')::date, $3::date))
    ON CONFLICT (id) DO NOTHING
)
INSERT INTO user_quotas (user_id, date_key, attempt_count, free_count, cooldown_level, cooldown_until, updated_at)
VALUES ($1, $3::date, $4, $5, $6, $7, NOW())
ON CONFLICT (user_id) DO UPDATE SET
    date_key = EXCLUDED.date_key,
    attempt_count = EXCLUDED.attempt_count,
    free_count = EXCLUDED.free_count,
    cooldown_level = EXCLUDED.cooldown_level,
    cooldown_until = EXCLUDED.cooldown_until,
    updated_at = NOW()`

func (s *Quotas) Save(ctx context.Context, rec quota.Record) error {
	var until sql.NullTime
	if !rec.CooldownUntil.IsZero() {
		until = sql.NullTime{Time: rec.CooldownUntil, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, saveQuota,
		rec.UserID, rec.FirstSeenDate, rec.DateKey,
		rec.AttemptCount, rec.FreeCount, rec.CooldownLevel, until,
	)
	if err != nil {
		return fmt.Errorf("save quota %d: %w", rec.UserID, err)
	}
	return nil
}

func (s *Quotas) SetVIP(ctx context.Context, userID int64, vip bool) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET is_vip = $2 WHERE id = $1`, userID, vip); err != nil {
		return fmt.Errorf("set vip %d: %w", userID, err)
	}
	return nil
}
