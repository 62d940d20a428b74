package quota

import (
	"context"
	"errors"
	"testing"
	"time"
)

var cst = time.FixedZone("UTC+8", 8*3600)

type stubStore struct {
	rows    map[int64]Record
	saves   int
	loadErr error
	saveErr error
}

func newStubStore() *stubStore { return &stubStore{rows: map[int64]Record{}} }

func (s *stubStore) Load(_ context.Context, id int64) (Record, bool, error) {
	if s.loadErr != nil {
		return Record{}, false, s.loadErr
	}
	r, ok := s.rows[id]
	return r, ok, nil
}

func (s *stubStore) Save(_ context.Context, r Record) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	vip := s.rows[r.UserID].IsVIP
	r.IsVIP = vip
	s.rows[r.UserID] = r
	return nil
}

func (s *stubStore) SetVIP(_ context.Context, id int64, vip bool) error {
	r := s.rows[id]
	r.UserID = id
	r.IsVIP = vip
	s.rows[id] = r
	return nil
}

type countingLocker struct{ locks, unlocks int }

func (l *countingLocker) Lock(context.Context, int64) (func(), error) {
	l.locks++
	return func() { l.unlocks++ }, nil
}

func testPolicy() Policy {
	return Policy{
		MaxDailyUses:      10,
		NewUserFree:       3,
		ReturningUserFree: 2,
		Cooldowns:         []time.Duration{5 * time.Minute, 10 * time.Minute, 30 * time.Minute, 40 * time.Minute, 50 * time.Minute},
		Location:          cst,
	}
}

func newTestEngine(t *testing.T, store Store, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(store, testPolicy(), opts...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func at(day, hour, minute int) time.Time {
	return time.Date(2025, time.March, day, hour, minute, 0, 0, cst)
}

func TestVIPBypassesWithoutMutation(t *testing.T) {
	store := newStubStore()
	until := at(10, 12, 30)
	store.rows[1] = Record{UserID: 1, DateKey: "2025-03-10", AttemptCount: 10, FreeCount: 2, CooldownLevel: 3, CooldownUntil: until, IsVIP: true, FirstSeenDate: "2025-03-01"}
	e := newTestEngine(t, store)

	for i := 0; i < 20; i++ {
		d, err := e.CheckAndConsume(context.Background(), 1, at(10, 12, 0))
		if err != nil {
			t.Fatalf("check: %v", err)
		}
		if d.Outcome != Allowed {
			t.Fatalf("attempt %d: outcome %s, want allowed", i, d.Outcome)
		}
	}
	got := store.rows[1]
	if store.saves != 0 || got.CooldownLevel != 3 || !got.CooldownUntil.Equal(until) {
		t.Fatalf("vip record mutated: saves=%d rec=%+v", store.saves, got)
	}
}

func TestNewUserGetsExactlyNewUserFree(t *testing.T) {
	store := newStubStore()
	e := newTestEngine(t, store)
	now := at(10, 9, 0)

	for i := 0; i < 3; i++ {
		d, err := e.CheckAndConsume(context.Background(), 7, now)
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if d.Outcome != Allowed || !d.Record.CooldownUntil.IsZero() {
			t.Fatalf("attempt %d: %+v, want plain allowed", i, d)
		}
	}
	d, err := e.CheckAndConsume(context.Background(), 7, now)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Outcome != AllowedWithCooldownTrigger {
		t.Fatalf("fourth attempt outcome %s, want cooldown trigger", d.Outcome)
	}
	if want := now.Add(5 * time.Minute); !d.Record.CooldownUntil.Equal(want) {
		t.Fatalf("cooldown until %v, want %v", d.Record.CooldownUntil, want)
	}
	rec := store.rows[7]
	if rec.FreeCount != 3 || rec.AttemptCount != 4 || rec.CooldownLevel != 1 {
		t.Fatalf("stored record %+v", rec)
	}
}

func TestReturningUserArmsFirstCooldown(t *testing.T) {
	store := newStubStore()
	store.rows[5] = Record{UserID: 5, DateKey: "2025-03-10", AttemptCount: 2, FreeCount: 2, FirstSeenDate: "2025-03-09"}
	e := newTestEngine(t, store)
	now := at(10, 15, 0)

	d, err := e.CheckAndConsume(context.Background(), 5, now)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Outcome != AllowedWithCooldownTrigger {
		t.Fatalf("outcome %s, want cooldown trigger", d.Outcome)
	}
	if !d.Record.CooldownUntil.Equal(now.Add(5*time.Minute)) || d.Record.CooldownLevel != 1 {
		t.Fatalf("record %+v", d.Record)
	}

	d, err = e.CheckAndConsume(context.Background(), 5, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Outcome != Denied || d.Reason != ReasonCooling || d.RetryAfter != 4*time.Minute {
		t.Fatalf("during cooldown: %+v", d)
	}
	if store.rows[5].AttemptCount != 3 {
		t.Fatalf("denied attempt changed attempt_count: %+v", store.rows[5])
	}
}

func TestCooldownEscalatesAndClamps(t *testing.T) {
	store := newStubStore()
	store.rows[9] = Record{UserID: 9, DateKey: "2025-03-10", FreeCount: 2, AttemptCount: 2, FirstSeenDate: "2025-01-01"}
	policy := testPolicy()
	policy.MaxDailyUses = 100
	e, err := NewEngine(store, policy)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	now := at(10, 0, 30)
	want := []time.Duration{5, 10, 30, 40, 50, 50, 50}
	prevLevel := 0
	for i, mins := range want {
		d, err := e.CheckAndConsume(context.Background(), 9, now)
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if d.Outcome != AllowedWithCooldownTrigger {
			t.Fatalf("step %d: outcome %s", i, d.Outcome)
		}
		if got := d.Record.CooldownUntil.Sub(now); got != mins*time.Minute {
			t.Fatalf("step %d: cooldown %v, want %v", i, got, mins*time.Minute)
		}
		if d.Record.CooldownLevel < prevLevel {
			t.Fatalf("level decreased at step %d", i)
		}
		prevLevel = d.Record.CooldownLevel
		now = d.Record.CooldownUntil
	}
}

func TestDailyCapWinsOverCooldown(t *testing.T) {
	store := newStubStore()
	now := at(10, 20, 0)
	store.rows[3] = Record{UserID: 3, DateKey: "2025-03-10", AttemptCount: 10, FreeCount: 2, CooldownLevel: 4, CooldownUntil: now.Add(time.Hour), FirstSeenDate: "2025-03-01"}
	e := newTestEngine(t, store)

	for _, ts := range []time.Time{now, now.Add(2 * time.Hour)} {
		d, err := e.CheckAndConsume(context.Background(), 3, ts)
		if err != nil {
			t.Fatalf("check: %v", err)
		}
		if d.Outcome != Denied || d.Reason != ReasonDailyCapReached || d.RetryAfter != 0 {
			t.Fatalf("decision %+v, want daily cap", d)
		}
	}
}

func TestDayRolloverResetsDayFields(t *testing.T) {
	store := newStubStore()
	store.rows[4] = Record{UserID: 4, DateKey: "2025-03-09", AttemptCount: 10, FreeCount: 2, CooldownLevel: 5, CooldownUntil: at(9, 23, 55), FirstSeenDate: "2025-03-01"}
	e := newTestEngine(t, store)

	// 16:30 UTC on the 9th is already the 10th at UTC+8.
	now := time.Date(2025, time.March, 9, 16, 30, 0, 0, time.UTC)
	d, err := e.CheckAndConsume(context.Background(), 4, now)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Outcome != Allowed {
		t.Fatalf("outcome %s, want allowed after rollover", d.Outcome)
	}
	rec := store.rows[4]
	if rec.DateKey != "2025-03-10" || rec.AttemptCount != 1 || rec.FreeCount != 1 || rec.CooldownLevel != 0 || !rec.CooldownUntil.IsZero() {
		t.Fatalf("record after rollover %+v", rec)
	}
}

func TestResetUserMidCooldown(t *testing.T) {
	store := newStubStore()
	now := at(10, 10, 0)
	store.rows[6] = Record{UserID: 6, DateKey: "2025-03-10", AttemptCount: 5, FreeCount: 2, CooldownLevel: 2, CooldownUntil: now.Add(20 * time.Minute), FirstSeenDate: "2025-03-02"}
	e := newTestEngine(t, store)

	if err := e.ResetUser(context.Background(), 6, now); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := e.ResetUser(context.Background(), 6, now); err != nil {
		t.Fatalf("second reset: %v", err)
	}
	rec := store.rows[6]
	if rec.FirstSeenDate != "2025-03-02" || rec.AttemptCount != 0 || rec.CooldownLevel != 0 || !rec.CooldownUntil.IsZero() {
		t.Fatalf("record after reset %+v", rec)
	}

	d, err := e.CheckAndConsume(context.Background(), 6, now)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Outcome != Allowed {
		t.Fatalf("outcome %s, want allowed right after reset", d.Outcome)
	}
}

func TestStatusDoesNotConsume(t *testing.T) {
	store := newStubStore()
	now := at(10, 10, 0)
	store.rows[8] = Record{UserID: 8, DateKey: "2025-03-10", AttemptCount: 3, FreeCount: 2, CooldownLevel: 1, CooldownUntil: now.Add(3 * time.Minute), FirstSeenDate: "2025-03-01"}
	e := newTestEngine(t, store)

	s, err := e.Status(context.Background(), 8, now)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if s.Allowance != 2 || s.FreeLeft != 0 || s.UsesLeft != 7 || s.RetryAfter != 3*time.Minute {
		t.Fatalf("snapshot %+v", s)
	}
	if store.saves != 0 {
		t.Fatal("status must not write")
	}
}

func TestStorageErrorsAreWrapped(t *testing.T) {
	store := newStubStore()
	store.loadErr = errors.New("connection refused")
	e := newTestEngine(t, store)
	if _, err := e.CheckAndConsume(context.Background(), 1, at(10, 1, 0)); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("load error = %v, want ErrStorageUnavailable", err)
	}

	store.loadErr = nil
	store.saveErr = errors.New("read only")
	_, err := e.CheckAndConsume(context.Background(), 1, at(10, 1, 0))
	if !errors.Is(err, ErrStorageUnavailable) || !errors.Is(err, store.saveErr) {
		t.Fatalf("save error = %v, want wrapped ErrStorageUnavailable", err)
	}
}

func TestLockerWrapsEachAttempt(t *testing.T) {
	l := &countingLocker{}
	e := newTestEngine(t, newStubStore(), WithLocker(l))
	for i := 0; i < 3; i++ {
		if _, err := e.CheckAndConsume(context.Background(), 2, at(10, 1, 0)); err != nil {
			t.Fatalf("check: %v", err)
		}
	}
	if l.locks != 3 || l.unlocks != 3 {
		t.Fatalf("locks=%d unlocks=%d", l.locks, l.unlocks)
	}
}

func TestNewEngineRejectsBadPolicy(t *testing.T) {
	p := testPolicy()
	p.Cooldowns = []time.Duration{10 * time.Minute, 5 * time.Minute}
	if _, err := NewEngine(newStubStore(), p); err == nil {
		t.Fatal("expected error for decreasing cooldowns")
	}
}
