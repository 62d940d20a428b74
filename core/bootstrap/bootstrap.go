// Package bootstrap brings up the shared infrastructure: logger, Postgres
// with migrations, and Redis. Each backend is optional and skipped when its
// address is not configured.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	coreconfig "github.com/m3rciful/exchangebot/core/config"
	coredatabase "github.com/m3rciful/exchangebot/core/database"
	"github.com/m3rciful/exchangebot/core/logger"
	"github.com/m3rciful/exchangebot/core/redisx"
)

// Options control the bootstrap pipeline. Nil funcs use the core defaults.
type Options struct {
	Config *coreconfig.Config

	LoggerInit   func(*coreconfig.Config) error
	Connect      func(coreconfig.DatabaseConfig) (*sqlx.DB, error)
	Migrate      func(coreconfig.DatabaseConfig) error
	ConnectRedis func(context.Context, coreconfig.RedisConfig) (*redis.Client, error)
}

// Result exposes the initialized infrastructure. DB and Redis are nil when
// not configured.
type Result struct {
	DB    *sqlx.DB
	Redis *redis.Client
}

// Close releases every connection in Result.
func (r *Result) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.Redis != nil {
		errs = append(errs, r.Redis.Close())
	}
	if r.DB != nil {
		errs = append(errs, r.DB.Close())
	}
	return errors.Join(errs...)
}

// DatabaseEnabled reports whether cfg names a Postgres host.
func DatabaseEnabled(cfg coreconfig.DatabaseConfig) bool {
	return cfg.Host != ""
}

// Run initializes the logger, connects to Postgres and applies migrations,
// then connects to Redis.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	cfg := opts.Config

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	res := &Result{}
	if DatabaseEnabled(cfg.Database) {
		connect := opts.Connect
		if connect == nil {
			connect = coredatabase.Connect
		}
		db, err := connect(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
		}
		res.DB = db

		migrate := opts.Migrate
		if migrate == nil {
			migrate = coredatabase.RunMigrations
		}
		if err := migrate(cfg.Database); err != nil {
			_ = res.Close()
			return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
		}
	} else {
		logger.DB.Warn("database disabled, using in-memory stores",
			slog.String("event", "db.connect"),
			slog.String("status", "skip"),
		)
	}

	if redisx.Enabled(cfg.Redis) {
		connectRedis := opts.ConnectRedis
		if connectRedis == nil {
			connectRedis = redisx.Connect
		}
		rdb, err := connectRedis(ctx, cfg.Redis)
		if err != nil {
			_ = res.Close()
			return nil, fmt.Errorf("bootstrap: redis initialization failed: %w", err)
		}
		res.Redis = rdb
	} else {
		logger.Redis.Warn("redis disabled, conversation state kept in memory",
			slog.String("event", "redis.connect"),
			slog.String("status", "skip"),
		)
	}

	return res, nil
}
