package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	coreconfig "github.com/m3rciful/exchangebot/core/config"
)

func noLogger(*coreconfig.Config) error { return nil }

func TestRunSkipsUnconfiguredBackends(t *testing.T) {
	called := false
	res, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: noLogger,
		Connect: func(coreconfig.DatabaseConfig) (*sqlx.DB, error) {
			called = true
			return nil, nil
		},
		ConnectRedis: func(context.Context, coreconfig.RedisConfig) (*redis.Client, error) {
			called = true
			return nil, nil
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if called || res.DB != nil || res.Redis != nil {
		t.Fatalf("backends should be skipped, called=%v res=%+v", called, res)
	}
	if err := res.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestRunPropagatesFailures(t *testing.T) {
	boom := errors.New("boom")
	cfg := &coreconfig.Config{Database: coreconfig.DatabaseConfig{Host: "db"}}

	_, err := Run(context.Background(), Options{
		Config:     cfg,
		LoggerInit: noLogger,
		Connect:    func(coreconfig.DatabaseConfig) (*sqlx.DB, error) { return nil, boom },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("connect error not wrapped: %v", err)
	}

	_, err = Run(context.Background(), Options{
		Config:     cfg,
		LoggerInit: func(*coreconfig.Config) error { return boom },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("logger error not wrapped: %v", err)
	}

	if _, err := Run(context.Background(), Options{}); err == nil {
		t.Fatal("nil config accepted")
	}
}
