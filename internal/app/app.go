// Package app wires configuration, storage, services and the Telegram
// runtime into one runnable application.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/m3rciful/exchangebot/core/bootstrap"
	coreconfig "github.com/m3rciful/exchangebot/core/config"
	"github.com/m3rciful/exchangebot/core/logger"
	tg "github.com/m3rciful/exchangebot/core/telegram"
	"github.com/m3rciful/exchangebot/core/telegram/router"
	tgsender "github.com/m3rciful/exchangebot/core/telegram/sender"
	"github.com/m3rciful/exchangebot/internal/bot"
	"github.com/m3rciful/exchangebot/internal/chat"
	"github.com/m3rciful/exchangebot/internal/metrics"
	"github.com/m3rciful/exchangebot/internal/product"
	"github.com/m3rciful/exchangebot/internal/quota"
	"github.com/m3rciful/exchangebot/internal/review"

	tele "gopkg.in/telebot.v4"
)

// App is the assembled bot.
type App struct {
	cfg      *coreconfig.Config
	infra    *bootstrap.Result
	registry *prometheus.Registry
	metrics  *metrics.BotMetrics
	bot      *tele.Bot
	disp     *tgsender.Dispatcher
	tg       *bot.App
}

// New bootstraps infrastructure and builds every service.
func New(ctx context.Context, cfg *coreconfig.Config) (*App, error) {
	infra, err := bootstrap.Run(ctx, bootstrap.Options{Config: cfg})
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	b, err := tg.NewBot(cfg)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}
	disp := tgsender.NewDispatcher(tgsender.Options{MaxRetries: 2})

	a, err := assemble(cfg, infra, m, bot.NewMessenger(b, disp))
	if err != nil {
		disp.Close()
		_ = infra.Close()
		return nil, err
	}
	return &App{
		cfg:      cfg,
		infra:    infra,
		registry: registry,
		metrics:  m,
		bot:      b,
		disp:     disp,
		tg:       a,
	}, nil
}

// assemble builds the services on top of infra. It needs no network.
func assemble(cfg *coreconfig.Config, infra *bootstrap.Result, m *metrics.BotMetrics, messenger chat.Messenger) (*bot.App, error) {
	s := buildStores(infra, cfg.Redis, m)

	cooldowns, err := cfg.Campaign.CooldownSequence()
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	opts := []quota.Option{quota.WithObserver(m)}
	if s.locker != nil {
		opts = append(opts, quota.WithLocker(s.locker))
	}
	engine, err := quota.NewEngine(s.quotas, quota.Policy{
		MaxDailyUses:      cfg.Campaign.MaxDailyUses,
		NewUserFree:       cfg.Campaign.NewUserFree,
		ReturningUserFree: cfg.Campaign.ReturningUserFree,
		Cooldowns:         cooldowns,
		Location:          cfg.Campaign.Location(),
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	deliverer := product.NewDeliverer(messenger,
		cfg.Campaign.DeliveryPageSize,
		time.Duration(cfg.Campaign.DeliveryDelayMS)*time.Millisecond,
		m,
	)
	reviews := review.NewService(s.tickets, s.users, engine, messenger, review.Config{
		AdminID:         cfg.Telegram.AdminID,
		InviteLink:      cfg.Campaign.VIPInviteLink,
		RejectThreshold: cfg.Campaign.RejectThreshold,
	}, m)

	logger.Info(context.Background(), "app", "app.stores",
		slog.String("mode", s.mode),
		slog.Bool("lock", s.locker != nil),
	)
	return bot.New(bot.Deps{
		Config:    cfg,
		Messenger: messenger,
		Quota:     engine,
		Users:     s.users,
		Products:  s.products,
		Deliverer: deliverer,
		Reviews:   reviews,
		Sessions:  s.sessions,
		Observer:  m,
	})
}

// TelegramRunOptions returns the runtime configuration for core/telegram.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	return tg.RunOptions{
		Config:      a.cfg,
		Registry:    a.tg.Registry(),
		Bot:         a.bot,
		Dispatcher:  a.disp,
		Middlewares: tg.DefaultMiddlewares(a.cfg, a.tg.OnLimited),
		Routes:      a.tg.Routes(a.metrics),
		OnStart:     a.start,
		OnStop:      a.stop,
	}, nil
}

func (a *App) start(ctx context.Context, rt tg.Runtime) error {
	router.LogWiring(rt.Registry)
	if a.cfg.Metrics.Listen == "" {
		return nil
	}
	go func() {
		if err := metrics.Serve(ctx, a.cfg.Metrics.Listen, a.cfg.Metrics.Path, a.registry); err != nil {
			logger.Error(ctx, "metrics", "metrics.serve_failed", logger.Err(err))
		}
	}()
	return nil
}

func (a *App) stop(context.Context, tg.Runtime) error {
	return a.infra.Close()
}
