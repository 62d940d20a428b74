// Package redisstore keeps conversation state and per-user locks in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/exchangebot/internal/conversation"
)

const statePrefix = "state:"

// Sessions is a conversation.Store using SET with expiry.
type Sessions struct {
	rdb redis.UniversalClient
}

// NewSessions wraps rdb.
func NewSessions(rdb redis.UniversalClient) *Sessions {
	return &Sessions{rdb: rdb}
}

func stateKey(userID int64) string {
	return statePrefix + strconv.FormatInt(userID, 10)
}

// Get returns the stored state. Redis drops expired keys itself.
func (s *Sessions) Get(ctx context.Context, userID int64) (conversation.State, bool, error) {
	data, err := s.rdb.Get(ctx, stateKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return conversation.State{}, false, nil
	}
	if err != nil {
		return conversation.State{}, false, fmt.Errorf("redis get state: %w", err)
	}
	var st conversation.State
	if err := json.Unmarshal(data, &st); err != nil {
		// A record this build cannot read is treated as no state.
		_ = s.rdb.Del(ctx, stateKey(userID)).Err()
		return conversation.State{}, false, nil
	}
	return st, true, nil
}

// Put overwrites the state and its expiry.
func (s *Sessions) Put(ctx context.Context, userID int64, st conversation.State, ttl time.Duration) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := s.rdb.Set(ctx, stateKey(userID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set state: %w", err)
	}
	return nil
}

// Clear deletes the state key.
func (s *Sessions) Clear(ctx context.Context, userID int64) error {
	if err := s.rdb.Del(ctx, stateKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis del state: %w", err)
	}
	return nil
}
