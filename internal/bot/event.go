package bot

import (
	"strings"
	"time"

	"github.com/m3rciful/exchangebot/core/telegram/callbacks"
	"github.com/m3rciful/exchangebot/internal/chat"

	tele "gopkg.in/telebot.v4"
)

const eventSlot = "event"

// eventOf normalizes the update once and caches it on c.
func eventOf(c tele.Context) chat.Event {
	if ev, ok := c.Get(eventSlot).(chat.Event); ok {
		return ev
	}
	ev := toEvent(c.Update())
	c.Set(eventSlot, ev)
	return ev
}

func toEvent(u tele.Update) chat.Event {
	ev := chat.Event{UpdateID: u.ID, Timestamp: time.Now()}

	if cb := u.Callback; cb != nil {
		action, payload := callbacks.ParseCallbackData(cb)
		ev.Kind = chat.KindButton
		ev.Callback = chat.Callback{ID: cb.ID, Action: action, Payload: payload}
		if cb.Sender != nil {
			ev.UserID = cb.Sender.ID
			ev.ChatID = cb.Sender.ID
			ev.Username = cb.Sender.Username
		}
		if cb.Message != nil {
			ev.Callback.MessageID = cb.Message.ID
			ev.MessageID = cb.Message.ID
			if cb.Message.Chat != nil {
				ev.ChatID = cb.Message.Chat.ID
			}
		}
		return ev
	}

	m := u.Message
	if m == nil {
		return ev
	}
	ev.MessageID = m.ID
	if m.Sender != nil {
		ev.UserID = m.Sender.ID
		ev.Username = m.Sender.Username
	}
	if m.Chat != nil {
		ev.ChatID = m.Chat.ID
	} else {
		ev.ChatID = ev.UserID
	}
	if m.Unixtime > 0 {
		ev.Timestamp = m.Time()
	}

	if content := messageContent(m); content != nil {
		ev.Kind = chat.KindMedia
		ev.Content = content
		ev.Text = m.Caption
		if text, ok := content.(chat.Text); ok {
			ev.Kind = chat.KindText
			ev.Text = text.Body
		}
		return ev
	}

	ev.Text = m.Text
	if name, args, ok := chat.ParseCommand(m.Text); ok {
		ev.Kind = chat.KindCommand
		ev.Command = name
		ev.Args = args
		return ev
	}
	ev.Kind = chat.KindText
	return ev
}

// messageContent returns the storable content of m, or nil for plain text
// and unsupported kinds. Forwarded messages of any kind are kept as a
// reference so delivery re-forwards the original.
func messageContent(m *tele.Message) chat.Content {
	switch {
	case m.IsForwarded() && m.Chat != nil:
		return chat.Forwarded{FromChatID: m.Chat.ID, MessageID: m.ID}
	case m.Photo != nil:
		return chat.Photo{FileID: m.Photo.FileID, Caption: m.Caption}
	case m.Video != nil:
		return chat.Video{FileID: m.Video.FileID, Caption: m.Caption}
	case m.Document != nil:
		return chat.Document{
			FileID:   m.Document.FileID,
			Caption:  m.Caption,
			FileName: m.Document.FileName,
			MIME:     strings.ToLower(m.Document.MIME),
		}
	case m.Audio != nil:
		return chat.Audio{FileID: m.Audio.FileID, Caption: m.Caption}
	case m.Voice != nil:
		return chat.Voice{FileID: m.Voice.FileID}
	case m.Sticker != nil:
		return chat.Sticker{FileID: m.Sticker.FileID}
	}
	return nil
}
