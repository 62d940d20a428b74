package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/exchangebot/core/logger"
)

// Policy holds the campaign limits.
type Policy struct {
	MaxDailyUses      int
	NewUserFree       int
	ReturningUserFree int
	// Cooldowns is the non-decreasing escalation sequence.
	Cooldowns []time.Duration
	Location  *time.Location
}

func (p Policy) validate() error {
	if p.MaxDailyUses <= 0 {
		return fmt.Errorf("quota: max daily uses must be > 0")
	}
	if p.ReturningUserFree < 0 || p.NewUserFree < p.ReturningUserFree {
		return fmt.Errorf("quota: new user allowance must be >= returning allowance >= 0")
	}
	if len(p.Cooldowns) == 0 {
		return fmt.Errorf("quota: empty cooldown sequence")
	}
	for i, d := range p.Cooldowns {
		if d <= 0 || (i > 0 && d < p.Cooldowns[i-1]) {
			return fmt.Errorf("quota: cooldown sequence must be positive and non-decreasing")
		}
	}
	return nil
}

// Observer receives every decision. Metrics implement it.
type Observer interface {
	ObserveQuota(outcome Outcome, reason Reason)
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLocker serializes same-user attempts through l.
func WithLocker(l Locker) Option {
	return func(e *Engine) {
		if l != nil {
			e.locker = l
		}
	}
}

// WithObserver reports decisions to o.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// Engine evaluates and records redemption attempts.
type Engine struct {
	store    Store
	locker   Locker
	observer Observer
	policy   Policy
	log      *slog.Logger
}

// NewEngine validates policy and returns an engine backed by store.
func NewEngine(store Store, policy Policy, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("quota: nil store")
	}
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	if err := policy.validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		store:  store,
		locker: nopLocker{},
		policy: policy,
		log:    logger.Component("service.quota"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Today returns the reference-zone day key for now.
func (e *Engine) Today(now time.Time) string {
	return DateKey(now, e.policy.Location)
}

// Allowance returns the free allowance that applies to rec today.
func (e *Engine) Allowance(rec Record, today string) int {
	if rec.FirstSeenDate == today {
		return e.policy.NewUserFree
	}
	return e.policy.ReturningUserFree
}

// CheckAndConsume decides one redemption attempt and persists its effect.
// Denied attempts and VIP attempts write nothing.
func (e *Engine) CheckAndConsume(ctx context.Context, userID int64, now time.Time) (Decision, error) {
	unlock, err := e.locker.Lock(ctx, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: lock user %d: %w", ErrStorageUnavailable, userID, err)
	}
	defer unlock()

	today := e.Today(now)
	rec, err := e.load(ctx, userID, today)
	if err != nil {
		return Decision{}, err
	}

	d := e.decide(rec, now, today)
	if d.Outcome != Denied && !rec.IsVIP {
		if err := e.store.Save(ctx, d.Record); err != nil {
			return Decision{}, fmt.Errorf("%w: save user %d: %w", ErrStorageUnavailable, userID, err)
		}
	}

	if e.observer != nil {
		e.observer.ObserveQuota(d.Outcome, d.Reason)
	}
	logger.LogEvent(ctx, e.log, slog.LevelDebug, "quota.checked",
		slog.Int64("user_id", userID),
		slog.String("outcome", string(d.Outcome)),
		slog.String("reason", string(d.Reason)),
		slog.Int("daily_count", d.Record.AttemptCount),
		slog.Int("cooldown_level", d.Record.CooldownLevel),
		slog.Duration("retry_after", d.RetryAfter),
		slog.Bool("vip", rec.IsVIP),
	)
	return d, nil
}

// decide is the pure decision step over a day-normalized record.
func (e *Engine) decide(rec Record, now time.Time, today string) Decision {
	if rec.IsVIP {
		return Decision{Outcome: Allowed, Record: rec}
	}
	if rec.AttemptCount >= e.policy.MaxDailyUses {
		return Decision{Outcome: Denied, Reason: ReasonDailyCapReached, Record: rec}
	}
	if rec.Cooling(now) {
		return Decision{
			Outcome:    Denied,
			Reason:     ReasonCooling,
			RetryAfter: rec.CooldownUntil.Sub(now),
			Record:     rec,
		}
	}

	rec.AttemptCount++
	if rec.FreeCount < e.Allowance(rec, today) {
		rec.FreeCount++
		return Decision{Outcome: Allowed, Record: rec}
	}

	idx := rec.CooldownLevel
	if last := len(e.policy.Cooldowns) - 1; idx > last {
		idx = last
	}
	rec.CooldownUntil = now.Add(e.policy.Cooldowns[idx])
	rec.CooldownLevel++
	return Decision{Outcome: AllowedWithCooldownTrigger, Record: rec}
}

// ResetUser clears today's counters and any cooldown. It is idempotent.
func (e *Engine) ResetUser(ctx context.Context, userID int64, now time.Time) error {
	unlock, err := e.locker.Lock(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: lock user %d: %w", ErrStorageUnavailable, userID, err)
	}
	defer unlock()

	today := e.Today(now)
	rec, err := e.load(ctx, userID, today)
	if err != nil {
		return err
	}
	rec.resetDay(today)
	if err := e.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("%w: save user %d: %w", ErrStorageUnavailable, userID, err)
	}
	logger.LogEvent(ctx, e.log, slog.LevelInfo, "quota.reset",
		slog.Int64("user_id", userID),
		slog.String("status", "ok"),
	)
	return nil
}

// SetVIP toggles the quota bypass for userID.
func (e *Engine) SetVIP(ctx context.Context, userID int64, vip bool) error {
	if err := e.store.SetVIP(ctx, userID, vip); err != nil {
		return fmt.Errorf("%w: set vip for user %d: %w", ErrStorageUnavailable, userID, err)
	}
	logger.LogEvent(ctx, e.log, slog.LevelInfo, "quota.vip",
		slog.Int64("user_id", userID),
		slog.Bool("vip", vip),
	)
	return nil
}

// Snapshot is a read-only view of a user's quota today.
type Snapshot struct {
	Record     Record
	Allowance  int
	FreeLeft   int
	UsesLeft   int
	RetryAfter time.Duration
}

// Status returns today's normalized record without consuming anything.
func (e *Engine) Status(ctx context.Context, userID int64, now time.Time) (Snapshot, error) {
	today := e.Today(now)
	rec, err := e.load(ctx, userID, today)
	if err != nil {
		return Snapshot{}, err
	}
	s := Snapshot{
		Record:    rec,
		Allowance: e.Allowance(rec, today),
		UsesLeft:  max(e.policy.MaxDailyUses-rec.AttemptCount, 0),
	}
	s.FreeLeft = max(s.Allowance-rec.FreeCount, 0)
	if rec.Cooling(now) {
		s.RetryAfter = rec.CooldownUntil.Sub(now)
	}
	return s, nil
}

// load reads the row and applies day rollover in memory.
func (e *Engine) load(ctx context.Context, userID int64, today string) (Record, error) {
	rec, found, err := e.store.Load(ctx, userID)
	if err != nil {
		return Record{}, fmt.Errorf("%w: load user %d: %w", ErrStorageUnavailable, userID, err)
	}
	if !found {
		return Record{UserID: userID, DateKey: today, FirstSeenDate: today}, nil
	}
	rec.UserID = userID
	if rec.FirstSeenDate == "" {
		rec.FirstSeenDate = today
	}
	if rec.DateKey != today {
		rec.resetDay(today)
	}
	return rec, nil
}
