package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/m3rciful/exchangebot/core/telegram/keyboard"
	"github.com/m3rciful/exchangebot/core/telegram/middleware"
	tgsender "github.com/m3rciful/exchangebot/core/telegram/sender"
	"github.com/m3rciful/exchangebot/internal/chat"

	tele "gopkg.in/telebot.v4"
)

// Messenger implements chat.Messenger on a telebot bot. Calls run through
// the dispatcher so they share its retry and logging policy.
type Messenger struct {
	bot  *tele.Bot
	disp *tgsender.Dispatcher
}

// NewMessenger returns a Messenger sending through b.
func NewMessenger(b *tele.Bot, disp *tgsender.Dispatcher) *Messenger {
	return &Messenger{bot: b, disp: disp}
}

// SendText sends text with an optional inline keyboard.
func (m *Messenger) SendText(ctx context.Context, chatID int64, text string, kb *chat.Keyboard) (int, error) {
	var msg *tele.Message
	err := m.disp.Do(ctx, "send_text", "sendMessage", func() error {
		var err error
		msg, err = m.bot.Send(tele.ChatID(chatID), text, sendOptions(kb))
		return err
	})
	if err != nil {
		return 0, err
	}
	middleware.CountSent(ctx, kb != nil)
	return msg.ID, nil
}

// SendMedia sends one content item. Forwarded items are re-forwarded and
// cannot carry a keyboard.
func (m *Messenger) SendMedia(ctx context.Context, chatID int64, c chat.Content, kb *chat.Keyboard) (int, error) {
	switch v := c.(type) {
	case chat.Text:
		return m.SendText(ctx, chatID, v.Body, kb)
	case chat.Forwarded:
		var msg *tele.Message
		stored := &tele.StoredMessage{MessageID: strconv.Itoa(v.MessageID), ChatID: v.FromChatID}
		err := m.disp.Do(ctx, "forward", "forwardMessage", func() error {
			var err error
			msg, err = m.bot.Forward(tele.ChatID(chatID), stored)
			return err
		})
		if err != nil {
			return 0, err
		}
		middleware.CountSent(ctx, false)
		return msg.ID, nil
	}

	what, endpoint, err := sendable(c)
	if err != nil {
		return 0, err
	}
	var msg *tele.Message
	err = m.disp.Do(ctx, "send_media", endpoint, func() error {
		var err error
		msg, err = m.bot.Send(tele.ChatID(chatID), what, sendOptions(kb))
		return err
	})
	if err != nil {
		return 0, err
	}
	middleware.CountSent(ctx, kb != nil)
	return msg.ID, nil
}

// EditMessage replaces the text and keyboard of a sent message. An empty
// text only replaces the keyboard, which also works on media messages.
func (m *Messenger) EditMessage(ctx context.Context, chatID int64, messageID int, text string, kb *chat.Keyboard) error {
	stored := &tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
	if text == "" {
		return m.disp.Do(ctx, "edit_markup", "editMessageReplyMarkup", func() error {
			_, err := m.bot.EditReplyMarkup(stored, inlineMarkup(kb))
			return ignoreNotModified(err)
		})
	}
	return m.disp.Do(ctx, "edit_text", "editMessageText", func() error {
		_, err := m.bot.Edit(stored, text, sendOptions(kb))
		return ignoreNotModified(err)
	})
}

// AnswerCallback stops the client spinner, optionally with a toast. The
// answer is queued; it runs inline only when the queue is saturated.
func (m *Messenger) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if callbackID == "" {
		return nil
	}
	run := func() error {
		return m.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
	}
	err := m.disp.Enqueue(ctx, "answer_callback", "answerCallbackQuery", run)
	if errors.Is(err, tgsender.ErrQueueFull) {
		return m.disp.Do(ctx, "answer_callback", "answerCallbackQuery", run)
	}
	return err
}

func ignoreNotModified(err error) error {
	if errors.Is(err, tele.ErrSameMessageContent) {
		return nil
	}
	return err
}

func sendOptions(kb *chat.Keyboard) *tele.SendOptions {
	opts := &tele.SendOptions{}
	if markup := inlineMarkup(kb); markup != nil {
		opts.ReplyMarkup = markup
	}
	return opts
}

// inlineMarkup maps a keyboard to telebot buttons: Action becomes the
// callback unique and Payload its data.
func inlineMarkup(kb *chat.Keyboard) *tele.ReplyMarkup {
	if kb == nil {
		return nil
	}
	rows := make([][]keyboard.InlineBtn, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		r := make([]keyboard.InlineBtn, 0, len(row))
		for _, b := range row {
			r = append(r, keyboard.InlineBtn{Text: b.Text, Unique: b.Action, Data: b.Payload, URL: b.URL})
		}
		rows = append(rows, r)
	}
	return keyboard.InlineButtonsRows(rows...)
}

func sendable(c chat.Content) (tele.Sendable, string, error) {
	switch v := c.(type) {
	case chat.Photo:
		return &tele.Photo{File: tele.File{FileID: v.FileID}, Caption: v.Caption}, "sendPhoto", nil
	case chat.Video:
		return &tele.Video{File: tele.File{FileID: v.FileID}, Caption: v.Caption}, "sendVideo", nil
	case chat.Document:
		return &tele.Document{File: tele.File{FileID: v.FileID}, Caption: v.Caption, FileName: v.FileName, MIME: v.MIME}, "sendDocument", nil
	case chat.Audio:
		return &tele.Audio{File: tele.File{FileID: v.FileID}, Caption: v.Caption}, "sendAudio", nil
	case chat.Voice:
		return &tele.Voice{File: tele.File{FileID: v.FileID}}, "sendVoice", nil
	case chat.Sticker:
		return &tele.Sticker{File: tele.File{FileID: v.FileID}}, "sendSticker", nil
	}
	return nil, "", fmt.Errorf("bot: unsupported content %T", c)
}
