package router

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/exchangebot/core/logger"
	tghelpers "github.com/m3rciful/exchangebot/core/telegram/helpers"
	"github.com/m3rciful/exchangebot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// summary times one routed update and writes its "handler.handled" line.
type summary struct {
	c      tele.Context
	opts   Options
	start  time.Time
	extras []slog.Attr
}

func begin(c tele.Context, opts Options, extras ...slog.Attr) *summary {
	return &summary{c: c, opts: opts, start: time.Now(), extras: extras}
}

// run executes h under name. A nil h is logged as skipped.
func (s *summary) run(name string, h tele.HandlerFunc) error {
	tghelpers.WithHandler(s.c, name)
	if h == nil {
		s.finish(name, "skip", nil)
		return nil
	}
	err := h(s.c)
	s.finish(name, "", err)
	return err
}

func (s *summary) finish(name, status string, err error) {
	ctx := tghelpers.WithHandler(s.c, name)
	msgs, kb := middleware.GetCounters(s.c)
	if status == "" {
		status = "ok"
		if err != nil {
			status = "fail"
		}
	}
	took := logger.Took(s.start)
	if s.opts.Observer != nil {
		s.opts.Observer.ObserveUpdate(middleware.UpdateKind(s.c), status, took, msgs)
	}

	level := slog.LevelInfo
	attrs := append([]slog.Attr{
		slog.String("status", status),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Duration("duration", took),
	}, s.extras...)
	if err != nil {
		level = slog.LevelError
		attrs = append(attrs, logger.Err(err), slog.String("err_code", errorCode(err)))
	}
	logger.LogEvent(ctx, logger.TG, level, "handler.handled", attrs...)
}

// handlerName turns a command or callback key into a log-friendly name.
func handlerName(key string) string {
	key = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(key), "/"))
	if key == "" {
		return "unknown"
	}
	return strings.ReplaceAll(key, " ", "_")
}

// errorCode prefers an error's own Code() and falls back to its category.
func errorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := strings.TrimSpace(coded.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	var api *tele.Error
	if errors.As(err, &api) {
		return "TELEGRAM_API"
	}
	return "INTERNAL"
}
