// Package redisx opens the go-redis client shared by the conversation store and the quota locker.
package redisx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	coreconfig "github.com/m3rciful/exchangebot/core/config"
	"github.com/m3rciful/exchangebot/core/logger"
)

// Enabled reports whether cfg names a Redis server.
func Enabled(cfg coreconfig.RedisConfig) bool {
	return cfg.Addr != ""
}

// Connect builds a client with bounded dial/read/write timeouts and pings it.
func Connect(ctx context.Context, cfg coreconfig.RedisConfig) (*redis.Client, error) {
	if !Enabled(cfg) {
		return nil, fmt.Errorf("redis: addr is empty")
	}
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		logger.Redis.Error("redis ping failed",
			slog.String("event", "redis.connect"),
			slog.String("status", "fail"),
			slog.String("addr", cfg.Addr),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Redis.Info("redis connected",
		slog.String("event", "redis.connect"),
		slog.String("status", "ok"),
		slog.String("addr", cfg.Addr),
		slog.Int("db", cfg.DB),
		slog.Duration("duration", logger.Took(start)),
	)
	return client, nil
}
