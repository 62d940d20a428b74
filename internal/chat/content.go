package chat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ContentKind tags a Content variant.
type ContentKind string

const (
	ContentText      ContentKind = "text"
	ContentPhoto     ContentKind = "photo"
	ContentVideo     ContentKind = "video"
	ContentDocument  ContentKind = "document"
	ContentAudio     ContentKind = "audio"
	ContentVoice     ContentKind = "voice"
	ContentSticker   ContentKind = "sticker"
	ContentForwarded ContentKind = "forwarded"
)

// Content is one deliverable item. The set of variants is closed.
type Content interface {
	Kind() ContentKind
	sealed()
}

type Text struct{ Body string }

type Photo struct {
	FileID  string
	Caption string
}

type Video struct {
	FileID  string
	Caption string
}

type Document struct {
	FileID   string
	Caption  string
	FileName string
	MIME     string
}

type Audio struct {
	FileID  string
	Caption string
}

type Voice struct{ FileID string }

type Sticker struct{ FileID string }

// Forwarded references a message that is re-forwarded on delivery.
type Forwarded struct {
	FromChatID int64
	MessageID  int
}

func (Text) Kind() ContentKind      { return ContentText }
func (Photo) Kind() ContentKind     { return ContentPhoto }
func (Video) Kind() ContentKind     { return ContentVideo }
func (Document) Kind() ContentKind  { return ContentDocument }
func (Audio) Kind() ContentKind     { return ContentAudio }
func (Voice) Kind() ContentKind     { return ContentVoice }
func (Sticker) Kind() ContentKind   { return ContentSticker }
func (Forwarded) Kind() ContentKind { return ContentForwarded }

func (Text) sealed()      {}
func (Photo) sealed()     {}
func (Video) sealed()     {}
func (Document) sealed()  {}
func (Audio) sealed()     {}
func (Voice) sealed()     {}
func (Sticker) sealed()   {}
func (Forwarded) sealed() {}

// IsImage reports whether c is a photo or an image sent as a file.
func IsImage(c Content) bool {
	switch v := c.(type) {
	case Photo:
		return v.FileID != ""
	case Document:
		return v.FileID != "" && strings.HasPrefix(v.MIME, "image/")
	default:
		return false
	}
}

// FileID returns the platform file reference of c, or "" for text and forwards.
func FileID(c Content) string {
	switch v := c.(type) {
	case Photo:
		return v.FileID
	case Video:
		return v.FileID
	case Document:
		return v.FileID
	case Audio:
		return v.FileID
	case Voice:
		return v.FileID
	case Sticker:
		return v.FileID
	default:
		return ""
	}
}

// envelope is the stored form of Content.
type envelope struct {
	Kind       ContentKind `json:"kind"`
	Body       string      `json:"body,omitempty"`
	FileID     string      `json:"file_id,omitempty"`
	Caption    string      `json:"caption,omitempty"`
	FileName   string      `json:"file_name,omitempty"`
	MIME       string      `json:"mime,omitempty"`
	FromChatID int64       `json:"from_chat_id,omitempty"`
	MessageID  int         `json:"message_id,omitempty"`
}

func toEnvelope(c Content) (envelope, error) {
	switch v := c.(type) {
	case Text:
		return envelope{Kind: ContentText, Body: v.Body}, nil
	case Photo:
		return envelope{Kind: ContentPhoto, FileID: v.FileID, Caption: v.Caption}, nil
	case Video:
		return envelope{Kind: ContentVideo, FileID: v.FileID, Caption: v.Caption}, nil
	case Document:
		return envelope{Kind: ContentDocument, FileID: v.FileID, Caption: v.Caption, FileName: v.FileName, MIME: v.MIME}, nil
	case Audio:
		return envelope{Kind: ContentAudio, FileID: v.FileID, Caption: v.Caption}, nil
	case Voice:
		return envelope{Kind: ContentVoice, FileID: v.FileID}, nil
	case Sticker:
		return envelope{Kind: ContentSticker, FileID: v.FileID}, nil
	case Forwarded:
		return envelope{Kind: ContentForwarded, FromChatID: v.FromChatID, MessageID: v.MessageID}, nil
	case nil:
		return envelope{}, fmt.Errorf("chat: nil content")
	default:
		return envelope{}, fmt.Errorf("chat: unsupported content %T", c)
	}
}

func (e envelope) content() (Content, error) {
	switch e.Kind {
	case ContentText:
		return Text{Body: e.Body}, nil
	case ContentPhoto:
		return Photo{FileID: e.FileID, Caption: e.Caption}, nil
	case ContentVideo:
		return Video{FileID: e.FileID, Caption: e.Caption}, nil
	case ContentDocument:
		return Document{FileID: e.FileID, Caption: e.Caption, FileName: e.FileName, MIME: e.MIME}, nil
	case ContentAudio:
		return Audio{FileID: e.FileID, Caption: e.Caption}, nil
	case ContentVoice:
		return Voice{FileID: e.FileID}, nil
	case ContentSticker:
		return Sticker{FileID: e.FileID}, nil
	case ContentForwarded:
		return Forwarded{FromChatID: e.FromChatID, MessageID: e.MessageID}, nil
	default:
		return nil, fmt.Errorf("chat: unknown content kind %q", e.Kind)
	}
}

// Items is an ordered content list that survives a JSON round trip.
type Items []Content

// MarshalJSON encodes every item as a kind-tagged object.
func (it Items) MarshalJSON() ([]byte, error) {
	out := make([]envelope, 0, len(it))
	for i, c := range it {
		env, err := toEnvelope(c)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, env)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes kind-tagged objects back into Content values.
func (it *Items) UnmarshalJSON(data []byte) error {
	var raw []envelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	items := make(Items, 0, len(raw))
	for i, env := range raw {
		c, err := env.content()
		if err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, c)
	}
	*it = items
	return nil
}
