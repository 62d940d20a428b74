// Package user holds the bot's per-user profile.
package user

import (
	"context"
	"time"
)

// Profile is what the bot remembers about a Telegram user.
type Profile struct {
	ID            int64
	Username      string
	FirstSeenDate string
	IsVIP         bool
	VIPPending    bool
	Banned        bool
	RejectCount   int
	Tier1Passed   bool
	Tier2Passed   bool
	// VerifyPending is the tier whose photo awaits review, 0 when none.
	VerifyPending int
	CreatedAt     time.Time
}

// TierPassed reports whether verification tier 1 or 2 was approved.
func (p Profile) TierPassed(tier int) bool {
	switch tier {
	case 1:
		return p.Tier1Passed
	case 2:
		return p.Tier2Passed
	default:
		return false
	}
}

// NextTier returns the verification tier the user may submit next, or 0 when both passed.
func (p Profile) NextTier() int {
	switch {
	case !p.Tier1Passed:
		return 1
	case !p.Tier2Passed:
		return 2
	default:
		return 0
	}
}

// Store persists profiles. Touch creates the profile on first contact with
// firstSeen as its first-seen date and refreshes the username afterwards.
type Store interface {
	Touch(ctx context.Context, id int64, username, firstSeen string) (Profile, error)
	Get(ctx context.Context, id int64) (Profile, bool, error)
	SetVIPPending(ctx context.Context, id int64, pending bool) error
	SetBanned(ctx context.Context, id int64, banned bool) error
	IncrementRejects(ctx context.Context, id int64) (int, error)
	SetTierPassed(ctx context.Context, id int64, tier int) error
	SetVerifyPending(ctx context.Context, id int64, tier int) error
}
