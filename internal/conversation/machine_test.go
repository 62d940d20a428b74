package conversation_test

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/m3rciful/exchangebot/internal/chat"
	"github.com/m3rciful/exchangebot/internal/conversation"
	"github.com/m3rciful/exchangebot/internal/product"
	"github.com/m3rciful/exchangebot/internal/review"
	"github.com/m3rciful/exchangebot/internal/storage/memory"
)

type outbound struct {
	chatID int64
	text   string
	kb     *chat.Keyboard
}

type recorder struct{ sent []outbound }

func (r *recorder) SendText(_ context.Context, chatID int64, text string, kb *chat.Keyboard) (int, error) {
	r.sent = append(r.sent, outbound{chatID: chatID, text: text, kb: kb})
	return len(r.sent), nil
}

func (r *recorder) SendMedia(context.Context, int64, chat.Content, *chat.Keyboard) (int, error) {
	return 0, nil
}

func (r *recorder) EditMessage(context.Context, int64, int, string, *chat.Keyboard) error { return nil }

func (r *recorder) AnswerCallback(context.Context, string, string) error { return nil }

func (r *recorder) last() string {
	if len(r.sent) == 0 {
		return ""
	}
	return r.sent[len(r.sent)-1].text
}

type submitter struct {
	orders        []string
	verifications []int
	err           error
}

func (s *submitter) SubmitOrder(_ context.Context, _, _ int64, order string) (review.Ticket, error) {
	if s.err != nil {
		return review.Ticket{}, s.err
	}
	s.orders = append(s.orders, order)
	return review.Ticket{ID: "t", Kind: review.KindOrder}, nil
}

func (s *submitter) SubmitVerification(_ context.Context, _, _ int64, tier int, _ chat.Content) (review.Ticket, error) {
	if s.err != nil {
		return review.Ticket{}, s.err
	}
	s.verifications = append(s.verifications, tier)
	return review.Ticket{ID: "v", Kind: review.KindVerification}, nil
}

type screens struct{ start, admin int }

func (s *screens) ShowStart(context.Context, int64, int64) error { s.start++; return nil }
func (s *screens) ShowAdminMenu(context.Context, int64) error { s.admin++; return nil }

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

type fixture struct {
	m        *conversation.Machine
	store    *memory.Sessions
	products *memory.Products
	out      *recorder
	reviews  *submitter
	screens  *screens
	clock    *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		products: memory.NewProducts(),
		out:      &recorder{},
		reviews:  &submitter{},
		screens:  &screens{},
		clock:    &clock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)},
	}
	f.store = memory.NewSessions(f.clock.Now)
	m, err := conversation.NewMachine(conversation.Deps{
		Store:            f.store,
		Messenger:        f.out,
		Products:         f.products,
		Reviews:          f.reviews,
		Screens:          f.screens,
		OrderPattern:     regexp.MustCompile(`^\d{18,20}$`),
		MaxOrderAttempts: 2,
		TTL:              time.Hour,
		Now:              f.clock.Now,
	})
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	f.m = m
	return f
}

const uid, cid = int64(42), int64(4200)

func text(s string) chat.Event {
	if name, args, ok := chat.ParseCommand(s); ok {
		return chat.Event{Kind: chat.KindCommand, UserID: uid, ChatID: cid, Command: name, Args: args, Text: s}
	}
	return chat.Event{Kind: chat.KindText, UserID: uid, ChatID: cid, Text: s}
}

func media(c chat.Content) chat.Event {
	return chat.Event{Kind: chat.KindMedia, UserID: uid, ChatID: cid, Content: c}
}

func button(action, payload string) chat.Event {
	return chat.Event{Kind: chat.KindButton, UserID: uid, ChatID: cid, Callback: chat.Callback{ID: "cb", Action: action, Payload: payload}}
}

func (f *fixture) handle(t *testing.T, ev chat.Event) bool {
	t.Helper()
	handled, err := f.m.Handle(context.Background(), ev)
	if err != nil {
		t.Fatalf("handle %+v: %v", ev, err)
	}
	return handled
}

func (f *fixture) active(t *testing.T) conversation.Action {
	t.Helper()
	a, err := f.m.Active(context.Background(), uid)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	return a
}

func TestIdleUserFallsThrough(t *testing.T) {
	f := newFixture(t)
	if f.handle(t, text("hello")) {
		t.Fatal("idle user event should not be handled")
	}
}

func TestExpiredStateBehavesAsIdle(t *testing.T) {
	f := newFixture(t)
	if err := f.m.Begin(context.Background(), uid, cid, conversation.AwaitingOrderNumber, 0); err != nil {
		t.Fatalf("begin: %v", err)
	}
	f.clock.t = f.clock.t.Add(time.Hour + time.Second)
	if f.active(t) != conversation.Idle {
		t.Fatal("expired state should read as idle")
	}
	if f.handle(t, text("123456789012345678")) {
		t.Fatal("expired state must not consume input")
	}
	if len(f.reviews.orders) != 0 {
		t.Fatal("expired state created a ticket")
	}
}

func TestOrderNumberTwoFailuresReturnToStart(t *testing.T) {
	f := newFixture(t)
	if err := f.m.Begin(context.Background(), uid, cid, conversation.AwaitingOrderNumber, 0); err != nil {
		t.Fatalf("begin: %v", err)
	}
	f.handle(t, text("not an order"))
	if f.active(t) != conversation.AwaitingOrderNumber {
		t.Fatal("first failure should keep the state")
	}
	f.handle(t, text("12345"))
	if f.active(t) != conversation.Idle {
		t.Fatal("second failure should clear the state")
	}
	if f.screens.start != 1 {
		t.Fatalf("start screen shown %d times", f.screens.start)
	}
	if len(f.reviews.orders) != 0 {
		t.Fatal("no ticket expected")
	}
}

func TestOrderNumberMatchCreatesOneTicket(t *testing.T) {
	f := newFixture(t)
	if err := f.m.Begin(context.Background(), uid, cid, conversation.AwaitingOrderNumber, 0); err != nil {
		t.Fatalf("begin: %v", err)
	}
	f.handle(t, text(" 202503101234567890 "))
	if len(f.reviews.orders) != 1 || f.reviews.orders[0] != "202503101234567890" {
		t.Fatalf("orders = %v", f.reviews.orders)
	}
	if f.active(t) != conversation.Idle {
		t.Fatal("state should be cleared after a valid order")
	}
	if f.handle(t, text("202503101234567890")) {
		t.Fatal("a second message must not reach the cleared flow")
	}
	if len(f.reviews.orders) != 1 {
		t.Fatal("exactly one ticket expected")
	}
}

func TestOrderNumberManualReview(t *testing.T) {
	f := newFixture(t)
	f.reviews.err = review.ErrManualReview
	if err := f.m.Begin(context.Background(), uid, cid, conversation.AwaitingOrderNumber, 0); err != nil {
		t.Fatalf("begin: %v", err)
	}
	f.handle(t, text("202503101234567890"))
	if f.active(t) != conversation.Idle || !strings.Contains(f.out.last(), "administrator") {
		t.Fatalf("manual review not reported: %q", f.out.last())
	}
}

func TestProductRoundTripKeepsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.m.Begin(ctx, uid, cid, conversation.AwaitingKeyword, 0); err != nil {
		t.Fatalf("begin: %v", err)
	}
	f.handle(t, text("   "))
	if f.active(t) != conversation.AwaitingKeyword {
		t.Fatal("blank keyword must re-prompt")
	}
	f.handle(t, text("Spring Pack"))
	if f.active(t) != conversation.CollectingContent {
		t.Fatal("keyword should move to collecting_content")
	}

	items := chat.Items{
		chat.Text{Body: "read me first"},
		chat.Photo{FileID: "ph"},
		chat.Video{FileID: "vi"},
		chat.Document{FileID: "doc", FileName: "a.pdf"},
		chat.Audio{FileID: "au"},
		chat.Voice{FileID: "vo"},
		chat.Sticker{FileID: "st"},
		chat.Forwarded{FromChatID: -100, MessageID: 9},
	}
	for _, it := range items {
		if txt, ok := it.(chat.Text); ok {
			f.handle(t, text(txt.Body))
			continue
		}
		f.handle(t, media(it))
	}
	f.handle(t, text("/finish"))

	if f.active(t) != conversation.Idle {
		t.Fatal("finish should clear the state")
	}
	p, ok, err := f.products.Get(ctx, "spring pack")
	if err != nil || !ok {
		t.Fatalf("product not saved: %v %v", ok, err)
	}
	if len(p.Items) != len(items) {
		t.Fatalf("saved %d items, want %d", len(p.Items), len(items))
	}
	for i := range items {
		if p.Items[i] != items[i] {
			t.Fatalf("item %d = %#v, want %#v", i, p.Items[i], items[i])
		}
	}
	if f.screens.admin != 1 {
		t.Fatal("admin menu should follow a saved product")
	}
}

func TestFinishWithoutItemsKeepsState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.m.Begin(ctx, uid, cid, conversation.AwaitingKeyword, 0); err != nil {
		t.Fatalf("begin: %v", err)
	}
	f.handle(t, text("empty"))
	if !f.handle(t, button(chat.ActionFinish, "")) {
		t.Fatal("finish button should be consumed by collecting_content")
	}
	if f.active(t) != conversation.CollectingContent {
		t.Fatal("incomplete finish must keep the state")
	}
	if _, ok, _ := f.products.Get(ctx, "empty"); ok {
		t.Fatal("incomplete product must not be saved")
	}
}

func TestForeignButtonsFallThrough(t *testing.T) {
	f := newFixture(t)
	if err := f.m.Begin(context.Background(), uid, cid, conversation.AwaitingKeyword, 0); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if f.handle(t, button(chat.ActionReview, "approve:t1")) {
		t.Fatal("review button must reach normal routing")
	}
	if f.active(t) != conversation.AwaitingKeyword {
		t.Fatal("foreign button changed state")
	}
}

func TestFileIDToolRepliesAndClears(t *testing.T) {
	f := newFixture(t)
	if err := f.m.Begin(context.Background(), uid, cid, conversation.AwaitingFileID, 0); err != nil {
		t.Fatalf("begin: %v", err)
	}
	f.handle(t, text("not an image"))
	if f.active(t) != conversation.AwaitingFileID {
		t.Fatal("text must re-prompt")
	}
	f.handle(t, media(chat.Photo{FileID: "AgAD-photo"}))
	found := false
	for _, o := range f.out.sent {
		if strings.Contains(o.text, "AgAD-photo") {
			found = true
		}
	}
	if !found || f.active(t) != conversation.Idle || f.screens.admin != 1 {
		t.Fatalf("file id tool: found=%v active=%q admin=%d", found, f.active(t), f.screens.admin)
	}
}

func TestVerificationPhotoSubmitsTier(t *testing.T) {
	f := newFixture(t)
	if err := f.m.Begin(context.Background(), uid, cid, conversation.AwaitingVerificationPhoto, 2); err != nil {
		t.Fatalf("begin: %v", err)
	}
	f.handle(t, media(chat.Video{FileID: "v"}))
	if len(f.reviews.verifications) != 0 {
		t.Fatal("video must not be accepted as verification")
	}
	f.handle(t, media(chat.Photo{FileID: "p"}))
	if len(f.reviews.verifications) != 1 || f.reviews.verifications[0] != 2 {
		t.Fatalf("verifications = %v", f.reviews.verifications)
	}
	if f.active(t) != conversation.Idle {
		t.Fatal("state should clear after submission")
	}
}

func TestCancelClearsAnyState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, a := range conversation.Actions() {
		if err := f.m.Begin(ctx, uid, cid, a, 1); err != nil {
			t.Fatalf("begin %s: %v", a, err)
		}
		had, err := f.m.Cancel(ctx, uid)
		if err != nil || !had {
			t.Fatalf("cancel %s: had=%v err=%v", a, had, err)
		}
		if f.active(t) != conversation.Idle {
			t.Fatalf("cancel left %s active", a)
		}
	}
	if had, _ := f.m.Cancel(ctx, uid); had {
		t.Fatal("cancel on idle user reported a flow")
	}
}

func TestStoreErrorsPropagate(t *testing.T) {
	boom := errors.New("redis down")
	m, err := conversation.NewMachine(conversation.Deps{
		Store:        failingStore{err: boom},
		Messenger:    &recorder{},
		Products:     memory.NewProducts(),
		Reviews:      &submitter{},
		Screens:      &screens{},
		OrderPattern: regexp.MustCompile(`.`),
	})
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	if _, err := m.Handle(context.Background(), text("x")); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

type failingStore struct{ err error }

func (s failingStore) Get(context.Context, int64) (conversation.State, bool, error) {
	return conversation.State{}, false, s.err
}

func (s failingStore) Put(context.Context, int64, conversation.State, time.Duration) error {
	return s.err
}

func (s failingStore) Clear(context.Context, int64) error { return s.err }

func TestOverlongKeywordRePrompts(t *testing.T) {
	f := newFixture(t)
	if err := f.m.Begin(context.Background(), uid, cid, conversation.AwaitingKeyword, 0); err != nil {
		t.Fatalf("begin: %v", err)
	}
	f.handle(t, text(strings.Repeat("资源", 10)))
	if f.active(t) != conversation.AwaitingKeyword {
		t.Fatal("overlong keyword must keep awaiting_keyword")
	}
	if !strings.Contains(f.out.last(), "too long") {
		t.Fatalf("reply = %q", f.out.last())
	}
	f.handle(t, text(strings.Repeat("资", product.MaxKeywordBytes/3)))
	if f.active(t) != conversation.CollectingContent {
		t.Fatal("keyword at the byte limit should be accepted")
	}
}

func TestCommandDuringOrderEntryDoesNotCountAsAttempt(t *testing.T) {
	f := newFixture(t)
	if err := f.m.Begin(context.Background(), uid, cid, conversation.AwaitingOrderNumber, 0); err != nil {
		t.Fatalf("begin: %v", err)
	}
	f.handle(t, text("/status"))
	f.handle(t, text("/start"))
	if f.active(t) != conversation.AwaitingOrderNumber {
		t.Fatal("commands must not exhaust the order attempts")
	}
	if f.screens.start != 0 {
		t.Fatal("start screen shown after commands")
	}
	f.handle(t, text("not an order"))
	if f.active(t) != conversation.AwaitingOrderNumber {
		t.Fatal("first plain-text failure should keep the state")
	}
	if !strings.Contains(f.out.last(), "(1/2)") {
		t.Fatalf("reply = %q", f.out.last())
	}
}

func TestRepromptRefreshesTTL(t *testing.T) {
	f := newFixture(t)
	if err := f.m.Begin(context.Background(), uid, cid, conversation.AwaitingVerificationPhoto, 1); err != nil {
		t.Fatalf("begin: %v", err)
	}
	f.clock.t = f.clock.t.Add(50 * time.Minute)
	f.handle(t, text("not a photo"))
	f.clock.t = f.clock.t.Add(50 * time.Minute)
	if f.active(t) != conversation.AwaitingVerificationPhoto {
		t.Fatal("re-prompt should extend the state's lifetime")
	}
}
