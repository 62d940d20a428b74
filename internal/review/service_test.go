package review_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/m3rciful/exchangebot/internal/chat"
	"github.com/m3rciful/exchangebot/internal/review"
	"github.com/m3rciful/exchangebot/internal/storage/memory"
)

const adminID = int64(1)

type message struct {
	chatID int64
	text   string
	media  chat.Content
	kb     *chat.Keyboard
}

type recorder struct{ sent []message }

func (r *recorder) SendText(_ context.Context, chatID int64, text string, kb *chat.Keyboard) (int, error) {
	r.sent = append(r.sent, message{chatID: chatID, text: text, kb: kb})
	return len(r.sent), nil
}

func (r *recorder) SendMedia(_ context.Context, chatID int64, c chat.Content, kb *chat.Keyboard) (int, error) {
	r.sent = append(r.sent, message{chatID: chatID, media: c, kb: kb})
	return len(r.sent), nil
}

func (r *recorder) EditMessage(context.Context, int64, int, string, *chat.Keyboard) error { return nil }

func (r *recorder) AnswerCallback(context.Context, string, string) error { return nil }

func (r *recorder) to(chatID int64) []message {
	var out []message
	for _, m := range r.sent {
		if m.chatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

type fixture struct {
	svc     *review.Service
	users   *memory.Users
	tickets *memory.Tickets
	out     *recorder
}

func newFixture(threshold int) *fixture {
	users := memory.NewUsers(nil)
	f := &fixture{users: users, tickets: memory.NewTickets(), out: &recorder{}}
	f.svc = review.NewService(f.tickets, users, memory.NewQuotas(users), f.out, review.Config{
		AdminID:         adminID,
		InviteLink:      "https://t.me/+vip",
		RejectThreshold: threshold,
	}, nil)
	return f
}

func TestSubmitOrderNotifiesAdminWithControls(t *testing.T) {
	f := newFixture(3)
	ctx := context.Background()
	tk, err := f.svc.SubmitOrder(ctx, 7, 70, "202503101234567890")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if tk.Status != review.StatusPending || tk.ID == "" {
		t.Fatalf("ticket %+v", tk)
	}
	p, _, _ := f.users.Get(ctx, 7)
	if !p.VIPPending {
		t.Fatal("user should be vip pending")
	}
	admin := f.out.to(adminID)
	if len(admin) != 1 || !strings.Contains(admin[0].text, "202503101234567890") {
		t.Fatalf("admin messages %+v", admin)
	}
	row := admin[0].kb.Rows[0]
	if len(row) != 4 {
		t.Fatalf("expected four review buttons, got %d", len(row))
	}
	d, id, ok := review.ParseButtonPayload(row[0].Payload)
	if !ok || d != review.Approve || id != tk.ID {
		t.Fatalf("first button decodes to %s %s %v", d, id, ok)
	}
}

func TestApproveOrderGrantsVIPOnce(t *testing.T) {
	f := newFixture(3)
	ctx := context.Background()
	tk, _ := f.svc.SubmitOrder(ctx, 7, 70, "202503101234567890")

	if _, err := f.svc.Decide(ctx, tk.ID, review.Approve); err != nil {
		t.Fatalf("approve: %v", err)
	}
	p, _, _ := f.users.Get(ctx, 7)
	if !p.IsVIP || p.VIPPending {
		t.Fatalf("profile after approve %+v", p)
	}
	msgs := f.out.to(70)
	if len(msgs) != 1 || msgs[0].kb == nil || msgs[0].kb.Rows[0][0].URL != "https://t.me/+vip" {
		t.Fatalf("user notification %+v", msgs)
	}
	if _, err := f.svc.Decide(ctx, tk.ID, review.Reject); !errors.Is(err, review.ErrAlreadyDecided) {
		t.Fatalf("second decision err = %v", err)
	}
	if _, err := f.svc.Decide(ctx, "missing", review.Approve); !errors.Is(err, review.ErrNotFound) {
		t.Fatalf("unknown ticket err = %v", err)
	}
}

func TestRejectionsReachManualReview(t *testing.T) {
	f := newFixture(2)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		tk, err := f.svc.SubmitOrder(ctx, 9, 90, "202503101234567890")
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if _, err := f.svc.Decide(ctx, tk.ID, review.Reject); err != nil {
			t.Fatalf("reject %d: %v", i, err)
		}
	}
	if _, err := f.svc.SubmitOrder(ctx, 9, 90, "202503101234567890"); !errors.Is(err, review.ErrManualReview) {
		t.Fatalf("third submit err = %v", err)
	}
	msgs := f.out.to(90)
	if !strings.Contains(msgs[len(msgs)-1].text, "administrator") {
		t.Fatalf("last user message %q", msgs[len(msgs)-1].text)
	}
}

func TestVerificationApprovalPassesTier(t *testing.T) {
	f := newFixture(3)
	ctx := context.Background()
	tk, err := f.svc.SubmitVerification(ctx, 5, 50, 1, chat.Photo{FileID: "proof"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if tk.FileID != "proof" || tk.Tier != 1 {
		t.Fatalf("ticket %+v", tk)
	}
	admin := f.out.to(adminID)
	if len(admin) != 2 || admin[0].media == nil {
		t.Fatalf("admin should receive the image then the controls: %+v", admin)
	}
	if _, err := f.svc.Decide(ctx, tk.ID, review.Approve); err != nil {
		t.Fatalf("approve: %v", err)
	}
	p, _, _ := f.users.Get(ctx, 5)
	if !p.Tier1Passed || p.IsVIP {
		t.Fatalf("profile %+v", p)
	}
	if _, err := f.svc.SubmitVerification(ctx, 5, 50, 3, chat.Photo{FileID: "x"}); err == nil {
		t.Fatal("tier 3 should be rejected")
	}
}

func TestBanAndDelete(t *testing.T) {
	f := newFixture(3)
	ctx := context.Background()
	a, _ := f.svc.SubmitOrder(ctx, 3, 30, "202503101234567890")
	b, _ := f.svc.SubmitOrder(ctx, 4, 40, "202503101234567891")

	if _, err := f.svc.Decide(ctx, a.ID, review.Ban); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if p, _, _ := f.users.Get(ctx, 3); !p.Banned {
		t.Fatal("user should be banned")
	}
	if _, err := f.svc.Decide(ctx, b.ID, review.Delete); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if p, _, _ := f.users.Get(ctx, 4); p.VIPPending {
		t.Fatal("deleting a pending order should clear vip pending")
	}
	if f.tickets.Count() != 1 {
		t.Fatalf("tickets left = %d", f.tickets.Count())
	}
	pending, err := f.svc.Pending(ctx, 10)
	if err != nil || len(pending) != 0 {
		t.Fatalf("pending = %v %v", pending, err)
	}
}

func TestRepeatedVerificationKeepsOnePendingTicket(t *testing.T) {
	f := newFixture(3)
	ctx := context.Background()
	first, err := f.svc.SubmitVerification(ctx, 6, 60, 1, chat.Photo{FileID: "a"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if p, _, _ := f.users.Get(ctx, 6); p.VerifyPending != 1 {
		t.Fatalf("verify pending = %d", p.VerifyPending)
	}
	for i := 0; i < 2; i++ {
		if _, err := f.svc.SubmitVerification(ctx, 6, 60, 1, chat.Photo{FileID: "b"}); !errors.Is(err, review.ErrAlreadyPending) {
			t.Fatalf("repeat %d err = %v", i, err)
		}
	}
	if pending, _ := f.svc.Pending(ctx, 10); len(pending) != 1 {
		t.Fatalf("pending tickets = %d", len(pending))
	}
	if n := len(f.out.to(adminID)); n != 2 {
		t.Fatalf("admin messages = %d", n)
	}

	if _, err := f.svc.Decide(ctx, first.ID, review.Reject); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if p, _, _ := f.users.Get(ctx, 6); p.VerifyPending != 0 {
		t.Fatal("rejection should clear the pending tier")
	}
	second, err := f.svc.SubmitVerification(ctx, 6, 60, 1, chat.Photo{FileID: "c"})
	if err != nil {
		t.Fatalf("resubmit after reject: %v", err)
	}
	if _, err := f.svc.Decide(ctx, second.ID, review.Delete); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if p, _, _ := f.users.Get(ctx, 6); p.VerifyPending != 0 {
		t.Fatal("deleting a pending verification should clear the pending tier")
	}
}
