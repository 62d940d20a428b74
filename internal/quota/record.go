// Package quota gates redemptions with per-day free allowances and an
// escalating cooldown.
package quota

import (
	"context"
	"errors"
	"time"
)

// DateLayout is the layout of Record.DateKey and Record.FirstSeenDate.
const DateLayout = "2006-01-02"

// ErrStorageUnavailable wraps every store or lock failure. Callers may retry.
var ErrStorageUnavailable = errors.New("quota: storage unavailable")

// Record is the per-user quota row. Day-scoped fields are only meaningful
// while DateKey equals today in the reference zone.
type Record struct {
	UserID        int64
	DateKey       string
	AttemptCount  int
	FreeCount     int
	CooldownLevel int
	// CooldownUntil is zero when no cooldown is armed.
	CooldownUntil time.Time

	IsVIP         bool
	FirstSeenDate string
}

// Cooling reports whether a cooldown is still running at now.
func (r Record) Cooling(now time.Time) bool {
	return !r.CooldownUntil.IsZero() && now.Before(r.CooldownUntil)
}

func (r *Record) resetDay(today string) {
	r.DateKey = today
	r.AttemptCount = 0
	r.FreeCount = 0
	r.CooldownLevel = 0
	r.CooldownUntil = time.Time{}
}

// Store persists quota rows. Load reports found=false for unknown users.
// Save is a single upsert of the day-scoped fields; it never writes IsVIP.
type Store interface {
	Load(ctx context.Context, userID int64) (rec Record, found bool, err error)
	Save(ctx context.Context, rec Record) error
	SetVIP(ctx context.Context, userID int64, vip bool) error
}

// Locker serializes read-modify-write for one user.
type Locker interface {
	Lock(ctx context.Context, userID int64) (unlock func(), err error)
}

type nopLocker struct{}

func (nopLocker) Lock(context.Context, int64) (func(), error) { return func() {}, nil }

// DateKey formats t as a calendar day in loc.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}
