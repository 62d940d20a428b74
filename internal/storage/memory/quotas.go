package memory

import (
	"context"
	"sync"

	"github.com/m3rciful/exchangebot/internal/quota"
	"github.com/m3rciful/exchangebot/internal/user"
)

// Quotas is a quota.Store. It reads VIP status and first-seen date from the
// user profiles it shares with Users.
type Quotas struct {
	mu    sync.Mutex
	rows  map[int64]quota.Record
	users *Users
}

// NewQuotas returns a quota store that joins profiles from users.
func NewQuotas(users *Users) *Quotas {
	return &Quotas{rows: make(map[int64]quota.Record), users: users}
}

// Load returns the stored row merged with the profile.
func (q *Quotas) Load(ctx context.Context, userID int64) (quota.Record, bool, error) {
	q.mu.Lock()
	rec, haveRow := q.rows[userID]
	q.mu.Unlock()

	p, haveProfile, err := q.users.Get(ctx, userID)
	if err != nil {
		return quota.Record{}, false, err
	}
	if !haveRow && !haveProfile {
		return quota.Record{}, false, nil
	}
	rec.UserID = userID
	if haveProfile {
		rec.IsVIP = p.IsVIP
		rec.FirstSeenDate = p.FirstSeenDate
	}
	return rec, true, nil
}

// Save upserts the day-scoped fields and creates the profile when missing.
func (q *Quotas) Save(_ context.Context, rec quota.Record) error {
	q.users.ensure(rec.UserID, rec.FirstSeenDate)
	rec.IsVIP = false
	rec.FirstSeenDate = ""
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rows[rec.UserID] = rec
	return nil
}

// SetVIP updates the profile flag.
func (q *Quotas) SetVIP(_ context.Context, userID int64, vip bool) error {
	q.users.update(userID, func(p *user.Profile) { p.IsVIP = vip })
	return nil
}
