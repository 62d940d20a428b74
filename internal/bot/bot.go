// Package bot adapts Telegram updates to the campaign services: it owns the
// command table, the callback handlers and the interceptors that run before
// them.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	coreconfig "github.com/m3rciful/exchangebot/core/config"
	"github.com/m3rciful/exchangebot/core/logger"
	tg "github.com/m3rciful/exchangebot/core/telegram"
	tghelpers "github.com/m3rciful/exchangebot/core/telegram/helpers"
	"github.com/m3rciful/exchangebot/core/telegram/middleware"
	"github.com/m3rciful/exchangebot/core/telegram/router"
	"github.com/m3rciful/exchangebot/internal/chat"
	"github.com/m3rciful/exchangebot/internal/conversation"
	"github.com/m3rciful/exchangebot/internal/product"
	"github.com/m3rciful/exchangebot/internal/quota"
	"github.com/m3rciful/exchangebot/internal/review"
	"github.com/m3rciful/exchangebot/internal/user"

	tele "gopkg.in/telebot.v4"
)

const msgTryLater = "Something went wrong. Please try again later."

// Deps are the services the bot routes to.
type Deps struct {
	Config    *coreconfig.Config
	Messenger chat.Messenger
	Quota     *quota.Engine
	Users     user.Store
	Products  product.Store
	Deliverer *product.Deliverer
	Reviews   *review.Service
	Sessions  conversation.Store
	Observer  conversation.Observer
	Now       func() time.Time
}

// App is the Telegram-facing application.
type App struct {
	cfg       *coreconfig.Config
	adminID   int64
	loc       *time.Location
	messenger chat.Messenger
	quota     *quota.Engine
	users     user.Store
	products  product.Store
	deliverer *product.Deliverer
	reviews   *review.Service
	machine   *conversation.Machine
	reg       *tg.Registry
	now       func() time.Time
	log       *slog.Logger
}

// New builds the conversation machine and the command registry.
func New(d Deps) (*App, error) {
	switch {
	case d.Config == nil:
		return nil, errors.New("bot: nil config")
	case d.Messenger == nil || d.Quota == nil || d.Users == nil || d.Products == nil:
		return nil, errors.New("bot: messenger, quota, users and products are required")
	case d.Deliverer == nil || d.Reviews == nil || d.Sessions == nil:
		return nil, errors.New("bot: deliverer, reviews and sessions are required")
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	pattern, err := regexp.Compile(d.Config.Campaign.OrderPattern)
	if err != nil {
		return nil, fmt.Errorf("bot: order pattern: %w", err)
	}
	ttl, err := d.Config.Campaign.StateTTLDuration()
	if err != nil {
		return nil, fmt.Errorf("bot: %w", err)
	}

	a := &App{
		cfg:       d.Config,
		adminID:   d.Config.Telegram.AdminID,
		loc:       d.Config.Campaign.Location(),
		messenger: d.Messenger,
		quota:     d.Quota,
		users:     d.Users,
		products:  d.Products,
		deliverer: d.Deliverer,
		reviews:   d.Reviews,
		reg:       tg.NewRegistry(),
		now:       d.Now,
		log:       logger.Component("tg.bot"),
	}
	a.machine, err = conversation.NewMachine(conversation.Deps{
		Store:            d.Sessions,
		Messenger:        d.Messenger,
		Products:         d.Products,
		Reviews:          d.Reviews,
		Screens:          a,
		Observer:         d.Observer,
		OrderPattern:     pattern,
		MaxOrderAttempts: d.Config.Campaign.MaxOrderAttempts,
		TTL:              ttl,
		Now:              d.Now,
	})
	if err != nil {
		return nil, err
	}
	a.register()
	return a, nil
}

// Registry returns the command and callback table.
func (a *App) Registry() *tg.Registry { return a.reg }

// Machine returns the conversation machine.
func (a *App) Machine() *conversation.Machine { return a.machine }

// RouterOptions returns the interceptor chain and fallbacks. Interceptors run
// in order: profile gate, admin cancel, active conversation.
func (a *App) RouterOptions(obs middleware.UpdateObserver) router.Options {
	return router.Options{
		AdminID: a.adminID,
		Interceptors: []router.Interceptor{
			{Name: "gate", Handle: a.gate},
			{Name: "cancel", Handle: a.interceptCancel},
			{Name: "conversation", Handle: a.interceptConversation},
		},
		OnAdminReject:   a.unknownCommand,
		UnknownCommand:  a.unknownCommand,
		UnknownMedia:    a.unexpectedMedia,
		UnknownCallback: a.unknownCallback,
		Observer:        obs,
	}
}

// Routes returns every telebot route of the bot.
func (a *App) Routes(obs middleware.UpdateObserver) []tg.Route {
	opts := a.RouterOptions(obs)
	return append(router.MessageRoutes(a.reg, opts), router.CallbackRoute(a.reg, opts))
}

// OnLimited answers updates dropped by the rate limiter. Callbacks get a
// toast so the button stops spinning; messages are dropped silently.
func (a *App) OnLimited(c tele.Context) error {
	if cb := c.Callback(); cb != nil {
		return a.messenger.AnswerCallback(tghelpers.BuildContext(c), cb.ID, "Too fast, please wait a moment.")
	}
	return nil
}

func (a *App) isAdmin(userID int64) bool {
	return a.adminID != 0 && userID == a.adminID
}

func (a *App) today() string {
	return quota.DateKey(a.now(), a.loc)
}

// handler adapts a service call to telebot. Errors are logged by the router;
// the user gets a generic reply.
func (a *App) handler(fn func(ctx context.Context, ev chat.Event) error) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		ev := eventOf(c)
		err := fn(ctx, ev)
		if err != nil && !errors.Is(err, context.Canceled) {
			if ev.Kind == chat.KindButton {
				_ = a.messenger.AnswerCallback(ctx, ev.Callback.ID, msgTryLater)
			} else {
				a.say(ctx, ev.ChatID, msgTryLater, nil)
			}
		}
		return err
	}
}

func (a *App) say(ctx context.Context, chatID int64, text string, kb *chat.Keyboard) {
	if _, err := a.messenger.SendText(ctx, chatID, text, kb); err != nil {
		logger.LogEvent(ctx, a.log, slog.LevelWarn, "bot.send_failed",
			slog.Int64("chat_id", chatID),
			logger.Err(err),
		)
	}
}

func (a *App) answer(ctx context.Context, ev chat.Event, text string) {
	if ev.Kind != chat.KindButton {
		return
	}
	if err := a.messenger.AnswerCallback(ctx, ev.Callback.ID, text); err != nil {
		logger.LogEvent(ctx, a.log, slog.LevelWarn, "bot.answer_failed", logger.Err(err))
	}
}
