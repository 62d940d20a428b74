package router

import (
	"testing"
	"time"

	tg "github.com/m3rciful/exchangebot/core/telegram"
	"github.com/m3rciful/exchangebot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

const adminID = 99

func newBot(t *testing.T) *tele.Bot {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true})
	if err != nil {
		t.Fatalf("offline bot: %v", err)
	}
	return b
}

func text(b *tele.Bot, userID int64, s string) tele.Context {
	return b.NewContext(tele.Update{
		ID:      1,
		Message: &tele.Message{Sender: &tele.User{ID: userID}, Chat: &tele.Chat{ID: userID}, Text: s},
	})
}

func press(b *tele.Bot, userID int64, data string) tele.Context {
	return b.NewContext(tele.Update{
		ID:       2,
		Callback: &tele.Callback{ID: "cb", Sender: &tele.User{ID: userID}, Data: data},
	})
}

type recorder struct {
	kinds    []string
	statuses []string
}

func (r *recorder) ObserveUpdate(kind, status string, _ time.Duration, _ int) {
	r.kinds = append(r.kinds, kind)
	r.statuses = append(r.statuses, status)
}

func textRoute(t *testing.T, routes []tg.Route) tele.HandlerFunc {
	t.Helper()
	for _, r := range routes {
		if r.Endpoint == tele.OnText {
			return r.Handler
		}
	}
	t.Fatal("no text route")
	return nil
}

func TestCommandName(t *testing.T) {
	cases := map[string]string{
		"/redeem abc":     "/redeem",
		"/Status@somebot": "/status",
		"  /cz 42":        "/cz",
		"hello":           "",
		"/":               "",
	}
	for in, want := range cases {
		got, _ := commandName(in)
		if got != want {
			t.Fatalf("commandName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMessageRouting(t *testing.T) {
	b := newBot(t)
	reg := tg.NewRegistry()
	var hits []string
	reg.RegisterCommand("/status", commands.Command{
		Description: "status",
		Handler:     func(tele.Context) error { hits = append(hits, "status"); return nil },
	})
	reg.RegisterCommand("/cz", commands.Command{
		Description: "reset",
		AdminOnly:   true,
		Handler:     func(tele.Context) error { hits = append(hits, "cz"); return nil },
	})
	reg.SetTextFallback(func(tele.Context) error { hits = append(hits, "fallback"); return nil })

	rec := &recorder{}
	opts := Options{
		AdminID:        adminID,
		OnAdminReject:  func(tele.Context) error { hits = append(hits, "rejected"); return nil },
		UnknownCommand: func(tele.Context) error { hits = append(hits, "unknown"); return nil },
		Observer:       rec,
		Interceptors: []Interceptor{{
			Name: "cancel",
			Handle: func(c tele.Context) (bool, error) {
				if c.Text() == "/cancel" {
					hits = append(hits, "cancel")
					return true, nil
				}
				return false, nil
			},
		}},
	}
	h := textRoute(t, MessageRoutes(reg, opts))

	_ = h(text(b, 1, "/status"))
	_ = h(text(b, 1, "/cz 5"))
	_ = h(text(b, adminID, "/cz 5"))
	_ = h(text(b, 1, "/nope"))
	_ = h(text(b, 1, "/cancel"))
	_ = h(text(b, 1, "vip2024"))

	want := []string{"status", "rejected", "cz", "unknown", "cancel", "fallback"}
	if len(hits) != len(want) {
		t.Fatalf("hits = %v, want %v", hits, want)
	}
	for i := range want {
		if hits[i] != want[i] {
			t.Fatalf("hits = %v, want %v", hits, want)
		}
	}
	if len(rec.statuses) != len(want) {
		t.Fatalf("observed %d updates, want %d", len(rec.statuses), len(want))
	}
}

func TestMediaGoesThroughInterceptors(t *testing.T) {
	b := newBot(t)
	var seen, fallback int
	routes := MessageRoutes(tg.NewRegistry(), Options{
		Interceptors: []Interceptor{{
			Name: "conversation",
			Handle: func(c tele.Context) (bool, error) {
				if c.Message().Photo != nil {
					seen++
					return true, nil
				}
				return false, nil
			},
		}},
		UnknownMedia: func(tele.Context) error { fallback++; return nil },
	})
	var photo tele.HandlerFunc
	for _, r := range routes {
		if r.Endpoint == tele.OnPhoto {
			photo = r.Handler
		}
	}
	if photo == nil {
		t.Fatal("no photo route")
	}
	withPhoto := b.NewContext(tele.Update{ID: 3, Message: &tele.Message{
		Sender: &tele.User{ID: 1}, Chat: &tele.Chat{ID: 1},
		Photo:  &tele.Photo{File: tele.File{FileID: "p1"}},
	}})
	withoutPhoto := b.NewContext(tele.Update{ID: 4, Message: &tele.Message{
		Sender: &tele.User{ID: 1}, Chat: &tele.Chat{ID: 1},
		Voice:  &tele.Voice{File: tele.File{FileID: "v1"}},
	}})
	_ = photo(withPhoto)
	_ = photo(withoutPhoto)
	if seen != 1 || fallback != 1 {
		t.Fatalf("seen=%d fallback=%d", seen, fallback)
	}
}

func TestCallbackRouting(t *testing.T) {
	b := newBot(t)
	reg := tg.NewRegistry()
	var got []string
	_ = reg.RegisterCallback("more", func(tele.Context) error { got = append(got, "more"); return nil })

	route := CallbackRoute(reg, Options{
		UnknownCallback: func(tele.Context) error { got = append(got, "unknown"); return nil },
		Interceptors: []Interceptor{{
			Name: "finish",
			Handle: func(c tele.Context) (bool, error) {
				if c.Callback().Data == "\ffinish" {
					got = append(got, "finish")
					return true, nil
				}
				return false, nil
			},
		}},
	})
	if route.Endpoint != tele.OnCallback {
		t.Fatalf("endpoint = %v", route.Endpoint)
	}

	_ = route.Handler(press(b, 1, "\fmore|10:vip"))
	_ = route.Handler(press(b, 1, "\ffinish"))
	_ = route.Handler(press(b, 1, "\fgone|x"))

	want := []string{"more", "finish", "unknown"}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
