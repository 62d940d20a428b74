package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/exchangebot/core/logger"
	"github.com/m3rciful/exchangebot/internal/chat"
	"github.com/m3rciful/exchangebot/internal/user"
)

// VIPSetter grants or revokes the quota bypass.
type VIPSetter interface {
	SetVIP(ctx context.Context, userID int64, vip bool) error
}

// Observer counts submitted tickets and decisions.
type Observer interface {
	ObserveReview(event string)
}

// Config holds the campaign settings the queue needs.
type Config struct {
	AdminID         int64
	InviteLink      string
	RejectThreshold int
}

// Service creates tickets, notifies the admin and applies decisions.
type Service struct {
	store     Store
	users     user.Store
	vip       VIPSetter
	messenger chat.Messenger
	cfg       Config
	observer  Observer

	now   func() time.Time
	newID func() string
	log   *slog.Logger
}

// NewService wires the review queue.
func NewService(store Store, users user.Store, vip VIPSetter, m chat.Messenger, cfg Config, obs Observer) *Service {
	if cfg.RejectThreshold <= 0 {
		cfg.RejectThreshold = 3
	}
	return &Service{
		store:     store,
		users:     users,
		vip:       vip,
		messenger: m,
		cfg:       cfg,
		observer:  obs,
		now:       time.Now,
		newID:     uuid.NewString,
		log:       logger.Component("service.review"),
	}
}

// CanSubmit returns ErrManualReview once the user's rejections reach the threshold.
func (s *Service) CanSubmit(ctx context.Context, userID int64) error {
	p, _, err := s.users.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", userID, err)
	}
	if p.RejectCount >= s.cfg.RejectThreshold {
		return ErrManualReview
	}
	return nil
}

// SubmitOrder records a VIP payment claim and notifies the admin.
func (s *Service) SubmitOrder(ctx context.Context, userID, chatID int64, orderNumber string) (Ticket, error) {
	if err := s.CanSubmit(ctx, userID); err != nil {
		return Ticket{}, err
	}
	t := s.newTicket(userID, chatID, KindOrder)
	t.OrderNumber = orderNumber
	if err := s.store.Create(ctx, t); err != nil {
		return Ticket{}, fmt.Errorf("create ticket: %w", err)
	}
	if err := s.users.SetVIPPending(ctx, userID, true); err != nil {
		return t, fmt.Errorf("mark vip pending: %w", err)
	}
	text := fmt.Sprintf("VIP order from user %d\nOrder number: %s\nTicket: %s", userID, orderNumber, t.ID)
	s.notifyAdmin(ctx, t, nil, text)
	return t, nil
}

// SubmitVerification forwards a verification image to the admin as a ticket.
func (s *Service) SubmitVerification(ctx context.Context, userID, chatID int64, tier int, image chat.Content) (Ticket, error) {
	if tier != 1 && tier != 2 {
		return Ticket{}, fmt.Errorf("review: invalid verification tier %d", tier)
	}
	p, _, err := s.users.Get(ctx, userID)
	if err != nil {
		return Ticket{}, fmt.Errorf("load user %d: %w", userID, err)
	}
	switch {
	case p.RejectCount >= s.cfg.RejectThreshold:
		return Ticket{}, ErrManualReview
	case p.VerifyPending != 0:
		return Ticket{}, ErrAlreadyPending
	}
	t := s.newTicket(userID, chatID, KindVerification)
	t.Tier = tier
	t.FileID = chat.FileID(image)
	if err := s.store.Create(ctx, t); err != nil {
		return Ticket{}, fmt.Errorf("create ticket: %w", err)
	}
	if err := s.users.SetVerifyPending(ctx, userID, tier); err != nil {
		return t, fmt.Errorf("mark verification pending: %w", err)
	}
	text := fmt.Sprintf("Tier %d verification from user %d\nTicket: %s", tier, userID, t.ID)
	s.notifyAdmin(ctx, t, image, text)
	return t, nil
}

func (s *Service) newTicket(userID, chatID int64, kind Kind) Ticket {
	return Ticket{
		ID:        s.newID(),
		UserID:    userID,
		ChatID:    chatID,
		Kind:      kind,
		Status:    StatusPending,
		CreatedAt: s.now(),
	}
}

func (s *Service) notifyAdmin(ctx context.Context, t Ticket, media chat.Content, text string) {
	if media != nil {
		if _, err := s.messenger.SendMedia(ctx, s.cfg.AdminID, media, nil); err != nil {
			s.logFailure(ctx, "review.notify_failed", t, err)
		}
	}
	if _, err := s.messenger.SendText(ctx, s.cfg.AdminID, text, Keyboard(t.ID)); err != nil {
		s.logFailure(ctx, "review.notify_failed", t, err)
	}
	if s.observer != nil {
		s.observer.ObserveReview("submitted")
	}
	logger.LogEvent(ctx, s.log, slog.LevelInfo, "review.submitted",
		slog.String("ticket_id", t.ID),
		slog.String("kind", string(t.Kind)),
		slog.Int64("user_id", t.UserID),
		slog.Int("tier", t.Tier),
	)
}

// Decide applies an admin verdict. Only pending tickets accept approve,
// reject or ban; delete removes a ticket in any state.
func (s *Service) Decide(ctx context.Context, ticketID string, d Decision) (Ticket, error) {
	if d == Delete {
		t, err := s.store.Get(ctx, ticketID)
		if err != nil {
			return Ticket{}, err
		}
		if err := s.store.Delete(ctx, ticketID); err != nil {
			return Ticket{}, fmt.Errorf("delete ticket: %w", err)
		}
		if t.Status == StatusPending {
			if err := s.clearPending(ctx, t); err != nil {
				return t, err
			}
		}
		s.logDecision(ctx, t, d)
		return t, nil
	}

	to := d.status()
	if to == "" {
		return Ticket{}, fmt.Errorf("review: unknown decision %q", d)
	}
	t, err := s.store.Transition(ctx, ticketID, to, s.now())
	if err != nil {
		return Ticket{}, err
	}

	var effectErr error
	switch d {
	case Approve:
		effectErr = s.approve(ctx, t)
	case Reject:
		effectErr = s.reject(ctx, t)
	case Ban:
		effectErr = s.ban(ctx, t)
	}
	if effectErr != nil {
		s.logFailure(ctx, "review.effect_failed", t, effectErr)
		return t, effectErr
	}
	s.logDecision(ctx, t, d)
	return t, nil
}

func (s *Service) approve(ctx context.Context, t Ticket) error {
	switch t.Kind {
	case KindOrder:
		if err := s.vip.SetVIP(ctx, t.UserID, true); err != nil {
			return err
		}
		if err := s.clearPending(ctx, t); err != nil {
			return err
		}
		var kb *chat.Keyboard
		if s.cfg.InviteLink != "" {
			kb = (&chat.Keyboard{}).Row(chat.Button{Text: "Join the VIP group", URL: s.cfg.InviteLink})
		}
		s.tellUser(ctx, t, "Your VIP payment was approved. Welcome aboard!", kb)
	case KindVerification:
		if err := s.users.SetTierPassed(ctx, t.UserID, t.Tier); err != nil {
			return err
		}
		if err := s.clearPending(ctx, t); err != nil {
			return err
		}
		s.tellUser(ctx, t, fmt.Sprintf("Tier %d verification approved.", t.Tier), nil)
	}
	return nil
}

func (s *Service) reject(ctx context.Context, t Ticket) error {
	n, err := s.users.IncrementRejects(ctx, t.UserID)
	if err != nil {
		return err
	}
	if err := s.clearPending(ctx, t); err != nil {
		return err
	}
	if n >= s.cfg.RejectThreshold {
		s.tellUser(ctx, t, "Your submission was rejected. Please contact the administrator for a manual review.", nil)
		return nil
	}
	s.tellUser(ctx, t, fmt.Sprintf("Your submission was rejected (%d/%d). Please check it and submit again.", n, s.cfg.RejectThreshold), nil)
	return nil
}

func (s *Service) ban(ctx context.Context, t Ticket) error {
	if err := s.users.SetBanned(ctx, t.UserID, true); err != nil {
		return err
	}
	if err := s.users.SetVIPPending(ctx, t.UserID, false); err != nil {
		return err
	}
	if err := s.users.SetVerifyPending(ctx, t.UserID, 0); err != nil {
		return err
	}
	s.tellUser(ctx, t, "Your access to this bot has been suspended.", nil)
	return nil
}

// clearPending drops the user's pending flag for t's kind.
func (s *Service) clearPending(ctx context.Context, t Ticket) error {
	var err error
	switch t.Kind {
	case KindOrder:
		err = s.users.SetVIPPending(ctx, t.UserID, false)
	case KindVerification:
		err = s.users.SetVerifyPending(ctx, t.UserID, 0)
	}
	if err != nil {
		return fmt.Errorf("clear %s pending: %w", t.Kind, err)
	}
	return nil
}

func (s *Service) tellUser(ctx context.Context, t Ticket, text string, kb *chat.Keyboard) {
	if _, err := s.messenger.SendText(ctx, t.ChatID, text, kb); err != nil {
		s.logFailure(ctx, "review.user_notify_failed", t, err)
	}
}

// Pending lists up to limit undecided tickets, oldest first.
func (s *Service) Pending(ctx context.Context, limit int) ([]Ticket, error) {
	return s.store.ListPending(ctx, limit)
}

func (s *Service) logDecision(ctx context.Context, t Ticket, d Decision) {
	if s.observer != nil {
		s.observer.ObserveReview(string(d))
	}
	logger.LogEvent(ctx, s.log, slog.LevelInfo, "review.decided",
		slog.String("ticket_id", t.ID),
		slog.String("decision", string(d)),
		slog.String("kind", string(t.Kind)),
		slog.Int64("user_id", t.UserID),
	)
}

func (s *Service) logFailure(ctx context.Context, event string, t Ticket, err error) {
	level := slog.LevelWarn
	if !errors.Is(err, context.Canceled) && event == "review.effect_failed" {
		level = slog.LevelError
	}
	logger.LogEvent(ctx, s.log, level, event,
		slog.String("ticket_id", t.ID),
		slog.Int64("user_id", t.UserID),
		slog.String("err", err.Error()),
	)
}
