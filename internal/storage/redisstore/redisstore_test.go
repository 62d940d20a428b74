package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/exchangebot/internal/chat"
	"github.com/m3rciful/exchangebot/internal/conversation"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return srv, rdb
}

func TestSessionsRoundTripWithTTL(t *testing.T) {
	srv, rdb := newClient(t)
	s := NewSessions(rdb)
	ctx := context.Background()

	in := conversation.State{
		Action:  conversation.CollectingContent,
		ChatID:  9,
		Keyword: "pack",
		Items:   chat.Items{chat.Photo{FileID: "p"}, chat.Forwarded{FromChatID: -1, MessageID: 3}},
	}
	if err := s.Put(ctx, 9, in, time.Hour); err != nil {
		t.Fatalf("put: %v", err)
	}
	if ttl := srv.TTL("state:9"); ttl != time.Hour {
		t.Fatalf("ttl = %v", ttl)
	}
	got, ok, err := s.Get(ctx, 9)
	if err != nil || !ok {
		t.Fatalf("get: %v %v", ok, err)
	}
	if got.Keyword != "pack" || len(got.Items) != 2 || got.Items[1] != in.Items[1] {
		t.Fatalf("state %+v", got)
	}

	srv.FastForward(time.Hour)
	if _, ok, _ := s.Get(ctx, 9); ok {
		t.Fatal("state should expire with the key")
	}
}

func TestSessionsClearAndCorruptRecord(t *testing.T) {
	srv, rdb := newClient(t)
	s := NewSessions(rdb)
	ctx := context.Background()

	if err := srv.Set("state:5", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, ok, err := s.Get(ctx, 5); ok || err != nil {
		t.Fatalf("corrupt record: ok=%v err=%v", ok, err)
	}
	if srv.Exists("state:5") {
		t.Fatal("corrupt record should be removed")
	}

	_ = s.Put(ctx, 6, conversation.State{Action: conversation.AwaitingKeyword}, time.Minute)
	if err := s.Clear(ctx, 6); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if srv.Exists("state:6") {
		t.Fatal("clear left the key")
	}
}

type lockStats struct{ ok, failed int }

func (s *lockStats) ObserveLock(ok bool, _ time.Duration) {
	if ok {
		s.ok++
	} else {
		s.failed++
	}
}

func TestLockerExcludesSecondHolder(t *testing.T) {
	srv, rdb := newClient(t)
	stats := &lockStats{}
	l := NewLocker(rdb, time.Second, stats)
	l.tries = 1
	ctx := context.Background()

	unlock, err := l.Lock(ctx, 77)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !srv.Exists("lock:quota:77") {
		t.Fatal("lock key missing")
	}
	if _, err := l.Lock(ctx, 77); err == nil {
		t.Fatal("second lock on the same user should fail")
	}
	other, err := l.Lock(ctx, 78)
	if err != nil {
		t.Fatalf("lock other user: %v", err)
	}
	other()

	unlock()
	again, err := l.Lock(ctx, 77)
	if err != nil {
		t.Fatalf("relock after release: %v", err)
	}
	again()
	if stats.ok != 3 || stats.failed != 1 {
		t.Fatalf("stats %+v", stats)
	}
}
