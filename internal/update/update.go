package update

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind identifies the top-level shape of an inbound update
type Kind int

const (
	KindUnknown Kind = iota
	KindMessage
	KindCallbackQuery
)

// MessageVariant identifies the payload carried by a message
type MessageVariant int

const (
	VariantOther MessageVariant = iota
	VariantText
	VariantVoice
	VariantAudio
	VariantAudioDocument
)

// Update is one webhook delivery from the Bot API.
// Only the fields this service consumes are modeled.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// Message is an inbound chat message
type Message struct {
	MessageID int64     `json:"message_id"`
	Chat      Chat      `json:"chat"`
	From      *User     `json:"from,omitempty"`
	Text      string    `json:"text,omitempty"`
	Voice     *File     `json:"voice,omitempty"`
	Audio     *File     `json:"audio,omitempty"`
	Document  *Document `json:"document,omitempty"`
}

// Chat identifies the conversation a message belongs to
type Chat struct {
	ID int64 `json:"id"`
}

// User identifies the sender of a message or callback
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

// File is a platform file reference with the size the platform reports
type File struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size,omitempty"`
}

// Document is an attached file; only audio documents are processed
type Document struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// CallbackQuery is an inline keyboard button press
type CallbackQuery struct {
	ID      string   `json:"id"`
	Data    string   `json:"data"`
	From    *User    `json:"from,omitempty"`
	Message *Message `json:"message,omitempty"`
}

// Parse decodes a webhook body into an Update
func Parse(body []byte) (*Update, error) {
	var u Update
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("failed to parse update body: %w", err)
	}
	return &u, nil
}

// Kind resolves the update shape once at the boundary
func (u *Update) Kind() Kind {
	switch {
	case u.Message != nil:
		return KindMessage
	case u.CallbackQuery != nil:
		return KindCallbackQuery
	default:
		return KindUnknown
	}
}

// String returns a human-readable kind name for logging and reporting
func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindCallbackQuery:
		return "callback_query"
	default:
		return "unknown"
	}
}

// ChatID returns the originating chat id for either update kind.
// The second return value is false when no chat can be resolved.
func (u *Update) ChatID() (int64, bool) {
	switch {
	case u.Message != nil:
		return u.Message.Chat.ID, true
	case u.CallbackQuery != nil && u.CallbackQuery.Message != nil:
		return u.CallbackQuery.Message.Chat.ID, true
	default:
		return 0, false
	}
}

// Variant resolves the message payload kind
func (m *Message) Variant() MessageVariant {
	switch {
	case m.Voice != nil:
		return VariantVoice
	case m.Audio != nil:
		return VariantAudio
	case m.Document != nil && strings.HasPrefix(m.Document.MimeType, "audio/"):
		return VariantAudioDocument
	case m.Text != "":
		return VariantText
	default:
		return VariantOther
	}
}

// AudioFile returns the file reference for whichever audio field is set
func (m *Message) AudioFile() (File, bool) {
	switch m.Variant() {
	case VariantVoice:
		return *m.Voice, true
	case VariantAudio:
		return *m.Audio, true
	case VariantAudioDocument:
		return File{FileID: m.Document.FileID, FileSize: m.Document.FileSize}, true
	default:
		return File{}, false
	}
}

// String returns a human-readable variant name for logging
func (v MessageVariant) String() string {
	switch v {
	case VariantText:
		return "text"
	case VariantVoice:
		return "voice"
	case VariantAudio:
		return "audio"
	case VariantAudioDocument:
		return "audio_document"
	default:
		return "other"
	}
}
