// Package router turns the registry into telebot routes. Every message and
// callback passes the interceptors first, in order, and reaches the registry
// only when none of them handled it.
package router

import (
	"github.com/m3rciful/exchangebot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Interceptor sees an update before command and callback routing.
type Interceptor struct {
	Name   string
	Handle func(c tele.Context) (handled bool, err error)
}

// Options configures routing and fallbacks.
type Options struct {
	AdminID      int64
	Interceptors []Interceptor

	// OnAdminReject answers admin-only commands sent by other users.
	OnAdminReject   tele.HandlerFunc
	UnknownCommand  tele.HandlerFunc
	UnknownMedia    tele.HandlerFunc
	UnknownCallback tele.HandlerFunc

	Observer middleware.UpdateObserver
}

func (o Options) intercept(c tele.Context) (string, bool, error) {
	for _, ic := range o.Interceptors {
		if ic.Handle == nil {
			continue
		}
		handled, err := ic.Handle(c)
		if handled || err != nil {
			return ic.Name, true, err
		}
	}
	return "", false, nil
}
