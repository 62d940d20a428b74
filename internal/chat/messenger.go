package chat

import "context"

// Button actions shared between keyboards and callback routing.
const (
	ActionFinish = "finish"
	ActionPaid   = "paid"
	ActionVerify = "verify"
	ActionReview = "review"
	ActionMore   = "more"
	ActionStart  = "start"
)

// Button is an inline button. URL buttons carry no action.
type Button struct {
	Text    string
	Action  string
	Payload string
	URL     string
}

// Keyboard is an inline keyboard laid out in rows.
type Keyboard struct {
	Rows [][]Button
}

// Row appends a row and returns the keyboard for chaining.
func (k *Keyboard) Row(buttons ...Button) *Keyboard {
	k.Rows = append(k.Rows, buttons)
	return k
}

// Messenger issues outbound chat commands.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, kb *Keyboard) (int, error)
	SendMedia(ctx context.Context, chatID int64, c Content, kb *Keyboard) (int, error)
	EditMessage(ctx context.Context, chatID int64, messageID int, text string, kb *Keyboard) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}
