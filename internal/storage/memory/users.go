package memory

import (
	"context"
	"sync"

	"github.com/m3rciful/exchangebot/internal/user"
)

// Users is a user.Store.
type Users struct {
	mu       sync.RWMutex
	profiles map[int64]user.Profile
	clock    Clock
}

// NewUsers returns an empty profile store.
func NewUsers(clock Clock) *Users {
	return &Users{profiles: make(map[int64]user.Profile), clock: clock}
}

func (u *Users) Touch(_ context.Context, id int64, username, firstSeen string) (user.Profile, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	p, ok := u.profiles[id]
	if !ok {
		p = user.Profile{ID: id, FirstSeenDate: firstSeen, CreatedAt: u.clock.now()}
	}
	if username != "" {
		p.Username = username
	}
	u.profiles[id] = p
	return p, nil
}

func (u *Users) Get(_ context.Context, id int64) (user.Profile, bool, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	p, ok := u.profiles[id]
	if !ok {
		return user.Profile{ID: id}, false, nil
	}
	return p, true, nil
}

func (u *Users) SetVIPPending(_ context.Context, id int64, pending bool) error {
	u.update(id, func(p *user.Profile) { p.VIPPending = pending })
	return nil
}

func (u *Users) SetBanned(_ context.Context, id int64, banned bool) error {
	u.update(id, func(p *user.Profile) { p.Banned = banned })
	return nil
}

func (u *Users) IncrementRejects(_ context.Context, id int64) (int, error) {
	var n int
	u.update(id, func(p *user.Profile) {
		p.RejectCount++
		n = p.RejectCount
	})
	return n, nil
}

func (u *Users) SetTierPassed(_ context.Context, id int64, tier int) error {
	u.update(id, func(p *user.Profile) {
		switch tier {
		case 1:
			p.Tier1Passed = true
		case 2:
			p.Tier2Passed = true
		}
	})
	return nil
}

func (u *Users) SetVerifyPending(_ context.Context, id int64, tier int) error {
	u.update(id, func(p *user.Profile) { p.VerifyPending = tier })
	return nil
}

func (u *Users) ensure(id int64, firstSeen string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.profiles[id]; !ok {
		u.profiles[id] = user.Profile{ID: id, FirstSeenDate: firstSeen, CreatedAt: u.clock.now()}
	}
}

func (u *Users) update(id int64, fn func(*user.Profile)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	p, ok := u.profiles[id]
	if !ok {
		p = user.Profile{ID: id, CreatedAt: u.clock.now()}
	}
	fn(&p)
	u.profiles[id] = p
}
