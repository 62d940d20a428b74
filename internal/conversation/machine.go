package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/m3rciful/exchangebot/core/logger"
	"github.com/m3rciful/exchangebot/internal/chat"
	"github.com/m3rciful/exchangebot/internal/product"
	"github.com/m3rciful/exchangebot/internal/review"
)

// ProductSaver persists a finished product.
type ProductSaver interface {
	Save(ctx context.Context, p product.Product) error
}

// Submitter files review tickets.
type Submitter interface {
	SubmitOrder(ctx context.Context, userID, chatID int64, orderNumber string) (review.Ticket, error)
	SubmitVerification(ctx context.Context, userID, chatID int64, tier int, image chat.Content) (review.Ticket, error)
}

// Screens renders the menus a flow returns to.
type Screens interface {
	ShowStart(ctx context.Context, chatID, userID int64) error
	ShowAdminMenu(ctx context.Context, chatID int64) error
}

// Observer counts transitions.
type Observer interface {
	ObserveTransition(from, to Action)
}

// Deps are the collaborators of a Machine.
type Deps struct {
	Store            Store
	Messenger        chat.Messenger
	Products         ProductSaver
	Reviews          Submitter
	Screens          Screens
	Observer         Observer
	OrderPattern     *regexp.Regexp
	MaxOrderAttempts int
	TTL              time.Duration
	Now              func() time.Time
}

type step func(ctx context.Context, st State, ev chat.Event) error

// Machine dispatches events to the step of the user's active action.
type Machine struct {
	deps  Deps
	steps map[Action]step
	log   *slog.Logger
}

// NewMachine checks deps and builds the dispatch table.
func NewMachine(d Deps) (*Machine, error) {
	switch {
	case d.Store == nil:
		return nil, errors.New("conversation: nil store")
	case d.Messenger == nil:
		return nil, errors.New("conversation: nil messenger")
	case d.Products == nil || d.Reviews == nil || d.Screens == nil:
		return nil, errors.New("conversation: products, reviews and screens are required")
	case d.OrderPattern == nil:
		return nil, errors.New("conversation: nil order pattern")
	}
	if d.MaxOrderAttempts <= 0 {
		d.MaxOrderAttempts = 2
	}
	if d.TTL <= 0 {
		d.TTL = time.Hour
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	m := &Machine{deps: d, log: logger.Component("service.conversation")}
	m.steps = map[Action]step{
		AwaitingFileID:            m.onFileID,
		AwaitingKeyword:           m.onKeyword,
		CollectingContent:         m.onContent,
		AwaitingOrderNumber:       m.onOrderNumber,
		AwaitingVerificationPhoto: m.onVerificationPhoto,
	}
	for _, a := range Actions() {
		if m.steps[a] == nil {
			return nil, fmt.Errorf("conversation: no step for %q", a)
		}
	}
	return m, nil
}

var prompts = map[Action]string{
	AwaitingFileID:            "Send an image and I will reply with its file id.",
	AwaitingKeyword:           "Send the keyword for the new product.",
	CollectingContent:         "Send the content items one by one. Send /finish or tap Finish when done.",
	AwaitingOrderNumber:       "Send your payment order number.",
	AwaitingVerificationPhoto: "Send the verification screenshot as an image.",
}

// Active returns the user's current action, Idle when none or expired.
func (m *Machine) Active(ctx context.Context, userID int64) (Action, error) {
	st, ok, err := m.deps.Store.Get(ctx, userID)
	if err != nil || !ok {
		return Idle, err
	}
	return st.Action, nil
}

// Begin enters action for the user and sends its prompt. tier is used by
// AwaitingVerificationPhoto only.
func (m *Machine) Begin(ctx context.Context, userID, chatID int64, action Action, tier int) error {
	if m.steps[action] == nil {
		return fmt.Errorf("conversation: cannot begin %q", action)
	}
	st := State{Action: action, ChatID: chatID, Tier: tier}
	if err := m.put(ctx, userID, Idle, st); err != nil {
		return err
	}
	var kb *chat.Keyboard
	if action == CollectingContent {
		kb = finishKeyboard()
	}
	return m.say(ctx, chatID, prompts[action], kb)
}

// Cancel clears any state of userID. It reports whether a flow was active.
func (m *Machine) Cancel(ctx context.Context, userID int64) (bool, error) {
	st, ok, err := m.deps.Store.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	if err := m.deps.Store.Clear(ctx, userID); err != nil {
		return false, err
	}
	if ok {
		m.transition(ctx, userID, st.Action, Idle)
	}
	return ok, nil
}

// Handle feeds ev to the active flow. handled is false when the user is idle
// or ev is a button the active flow does not own; the caller routes it normally.
func (m *Machine) Handle(ctx context.Context, ev chat.Event) (handled bool, err error) {
	st, ok, err := m.deps.Store.Get(ctx, ev.UserID)
	if err != nil {
		return false, err
	}
	if !ok || st.Action == Idle {
		return false, nil
	}
	if ev.Kind == chat.KindButton && !(st.Action == CollectingContent && ev.Callback.Action == chat.ActionFinish) {
		return false, nil
	}
	s := m.steps[st.Action]
	if s == nil {
		// Unknown tag from an older deployment.
		return false, m.deps.Store.Clear(ctx, ev.UserID)
	}
	if st.ChatID == 0 {
		st.ChatID = ev.ChatID
	}
	return true, s(ctx, st, ev)
}

func (m *Machine) onFileID(ctx context.Context, st State, ev chat.Event) error {
	if ev.Kind != chat.KindMedia || !chat.IsImage(ev.Content) {
		return m.reprompt(ctx, ev.UserID, st)
	}
	if err := m.say(ctx, st.ChatID, "File id:\n"+chat.FileID(ev.Content), nil); err != nil {
		return err
	}
	if err := m.clear(ctx, ev.UserID, st.Action); err != nil {
		return err
	}
	return m.deps.Screens.ShowAdminMenu(ctx, st.ChatID)
}

func (m *Machine) onKeyword(ctx context.Context, st State, ev chat.Event) error {
	text, ok := ev.PlainText()
	keyword := product.NormalizeKeyword(text)
	if !ok || keyword == "" {
		return m.reprompt(ctx, ev.UserID, st)
	}
	if errors.Is(product.CheckKeyword(keyword), product.ErrKeywordTooLong) {
		if err := m.put(ctx, ev.UserID, st.Action, st); err != nil {
			return err
		}
		return m.say(ctx, st.ChatID, fmt.Sprintf("That keyword is too long (max %d bytes). %s", product.MaxKeywordBytes, prompts[AwaitingKeyword]), nil)
	}
	next := State{Action: CollectingContent, ChatID: st.ChatID, Keyword: keyword}
	if err := m.put(ctx, ev.UserID, st.Action, next); err != nil {
		return err
	}
	return m.say(ctx, st.ChatID, fmt.Sprintf("Keyword %q saved.\n%s", keyword, prompts[CollectingContent]), finishKeyboard())
}

func (m *Machine) onContent(ctx context.Context, st State, ev chat.Event) error {
	if ev.IsCommand("finish") || (ev.Kind == chat.KindButton && ev.Callback.Action == chat.ActionFinish) {
		return m.finishProduct(ctx, st, ev)
	}
	var item chat.Content
	switch ev.Kind {
	case chat.KindText:
		if text, ok := ev.PlainText(); ok {
			item = chat.Text{Body: text}
		}
	case chat.KindMedia:
		item = ev.Content
	}
	if item == nil {
		return m.reprompt(ctx, ev.UserID, st)
	}
	st.Items = append(st.Items, item)
	if err := m.put(ctx, ev.UserID, st.Action, st); err != nil {
		return err
	}
	return m.say(ctx, st.ChatID, fmt.Sprintf("Item %d added (%s).", len(st.Items), item.Kind()), finishKeyboard())
}

func (m *Machine) finishProduct(ctx context.Context, st State, ev chat.Event) error {
	if ev.Kind == chat.KindButton {
		_ = m.deps.Messenger.AnswerCallback(ctx, ev.Callback.ID, "")
	}
	if st.Keyword == "" || len(st.Items) == 0 {
		logger.LogEvent(ctx, m.log, slog.LevelWarn, "conversation.finish_incomplete",
			slog.Int64("user_id", ev.UserID),
			slog.String("keyword", st.Keyword),
			slog.Int("items", len(st.Items)),
		)
		return m.say(ctx, st.ChatID, "Nothing to save yet: the product needs a keyword and at least one item.", finishKeyboard())
	}
	p := product.Product{Keyword: st.Keyword, Items: st.Items, CreatedAt: m.deps.Now()}
	if err := m.deps.Products.Save(ctx, p); err != nil {
		return fmt.Errorf("save product %q: %w", st.Keyword, err)
	}
	if err := m.clear(ctx, ev.UserID, st.Action); err != nil {
		return err
	}
	if err := m.say(ctx, st.ChatID, fmt.Sprintf("Product %q saved with %d items.", st.Keyword, len(st.Items)), nil); err != nil {
		return err
	}
	return m.deps.Screens.ShowAdminMenu(ctx, st.ChatID)
}

func (m *Machine) onOrderNumber(ctx context.Context, st State, ev chat.Event) error {
	// Commands only re-prompt; attempts count plain text.
	if ev.Kind != chat.KindText {
		return m.reprompt(ctx, ev.UserID, st)
	}
	text := strings.TrimSpace(ev.Text)

	if m.deps.OrderPattern.MatchString(text) {
		_, err := m.deps.Reviews.SubmitOrder(ctx, ev.UserID, st.ChatID, text)
		if errors.Is(err, review.ErrManualReview) {
			if err := m.clear(ctx, ev.UserID, st.Action); err != nil {
				return err
			}
			return m.say(ctx, st.ChatID, "Your previous submissions were rejected too often. Please contact the administrator.", nil)
		}
		if err != nil {
			return fmt.Errorf("submit order: %w", err)
		}
		if err := m.clear(ctx, ev.UserID, st.Action); err != nil {
			return err
		}
		return m.say(ctx, st.ChatID, "Order number received. An administrator will review it shortly.", nil)
	}

	st.Attempts++
	if st.Attempts >= m.deps.MaxOrderAttempts {
		if err := m.clear(ctx, ev.UserID, st.Action); err != nil {
			return err
		}
		if err := m.say(ctx, st.ChatID, "That does not look like a valid order number. Please start again.", nil); err != nil {
			return err
		}
		return m.deps.Screens.ShowStart(ctx, st.ChatID, ev.UserID)
	}
	if err := m.put(ctx, ev.UserID, st.Action, st); err != nil {
		return err
	}
	return m.say(ctx, st.ChatID, fmt.Sprintf("Invalid order number (%d/%d). %s", st.Attempts, m.deps.MaxOrderAttempts, prompts[AwaitingOrderNumber]), nil)
}

func (m *Machine) onVerificationPhoto(ctx context.Context, st State, ev chat.Event) error {
	if ev.Kind != chat.KindMedia || !chat.IsImage(ev.Content) {
		return m.reprompt(ctx, ev.UserID, st)
	}
	_, err := m.deps.Reviews.SubmitVerification(ctx, ev.UserID, st.ChatID, st.Tier, ev.Content)
	if err != nil && !errors.Is(err, review.ErrManualReview) && !errors.Is(err, review.ErrAlreadyPending) {
		return fmt.Errorf("submit verification: %w", err)
	}
	if cerr := m.clear(ctx, ev.UserID, st.Action); cerr != nil {
		return cerr
	}
	switch {
	case errors.Is(err, review.ErrManualReview):
		return m.say(ctx, st.ChatID, "Your previous submissions were rejected too often. Please contact the administrator.", nil)
	case errors.Is(err, review.ErrAlreadyPending):
		return m.say(ctx, st.ChatID, "Your verification is already waiting for review.", nil)
	}
	return m.say(ctx, st.ChatID, fmt.Sprintf("Tier %d verification submitted. Please wait for the review.", st.Tier), nil)
}

// reprompt repeats the prompt and refreshes the TTL without changing state.
func (m *Machine) reprompt(ctx context.Context, userID int64, st State) error {
	if err := m.put(ctx, userID, st.Action, st); err != nil {
		return err
	}
	var kb *chat.Keyboard
	if st.Action == CollectingContent {
		kb = finishKeyboard()
	}
	return m.say(ctx, st.ChatID, "That input is not valid here. "+prompts[st.Action], kb)
}

func (m *Machine) put(ctx context.Context, userID int64, from Action, st State) error {
	st.UpdatedAt = m.deps.Now()
	if err := m.deps.Store.Put(ctx, userID, st, m.deps.TTL); err != nil {
		return fmt.Errorf("store state: %w", err)
	}
	if from != st.Action {
		m.transition(ctx, userID, from, st.Action)
	}
	return nil
}

func (m *Machine) clear(ctx context.Context, userID int64, from Action) error {
	if err := m.deps.Store.Clear(ctx, userID); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	m.transition(ctx, userID, from, Idle)
	return nil
}

func (m *Machine) transition(ctx context.Context, userID int64, from, to Action) {
	if m.deps.Observer != nil {
		m.deps.Observer.ObserveTransition(from, to)
	}
	logger.LogEvent(ctx, m.log, slog.LevelDebug, "conversation.transition",
		slog.Int64("user_id", userID),
		slog.String("from", string(from)),
		slog.String("action", string(to)),
	)
}

func (m *Machine) say(ctx context.Context, chatID int64, text string, kb *chat.Keyboard) error {
	if _, err := m.deps.Messenger.SendText(ctx, chatID, text, kb); err != nil {
		logger.LogEvent(ctx, m.log, slog.LevelWarn, "conversation.send_failed",
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
	}
	return nil
}

func finishKeyboard() *chat.Keyboard {
	return (&chat.Keyboard{}).Row(chat.Button{Text: "Finish", Action: chat.ActionFinish})
}
