// Package discuss holds the types shared between the messaging substrate
// adapters, the trigger router and the Gemini bridge.
package discuss

import (
	"context"
	"time"
)

// ChannelKind distinguishes one-to-one conversations from shared channels.
type ChannelKind string

const (
	ChannelKindDirect  ChannelKind = "direct"
	ChannelKindChannel ChannelKind = "channel"
)

// BotIdentity is the synthetic participant that speaks for Gemini.
type BotIdentity struct {
	Name      string `json:"name" yaml:"name"`
	AccountID string `json:"account_id" yaml:"account_id"`
}

// Is reports whether authorID belongs to the bot.
func (b BotIdentity) Is(authorID string) bool {
	return b.AccountID != "" && authorID == b.AccountID
}

// Attachment references a file posted with a message. Data is nil until the
// owning adapter fetches it.
type Attachment struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	URL      string `json:"url,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

// Fetched reports whether the attachment bytes are already in memory.
func (a Attachment) Fetched() bool {
	return len(a.Data) > 0
}

// Event is a single inbound message as delivered by a substrate adapter.
type Event struct {
	ID          string       `json:"id"`
	Source      string       `json:"source"` // adapter name: "discord", "telegram", "amqp"
	ChannelID   string       `json:"channel_id"`
	ThreadID    string       `json:"thread_id,omitempty"`
	ChannelKind ChannelKind  `json:"channel_kind"`
	Label       string       `json:"label,omitempty"` // display name of the conversation
	AuthorID    string       `json:"author_id"`
	AuthorName  string       `json:"author_name,omitempty"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ReplyToID   string       `json:"reply_to_id,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Target returns the conversation a reply to this event belongs in.
func (e Event) Target() string {
	if e.ThreadID != "" {
		return e.ThreadID
	}
	return e.ChannelID
}

// Image is a validated inline binary part ready to be sent to the model.
type Image struct {
	MIMEType string
	Data     []byte
}

// Reply is a message authored by the bot.
type Reply struct {
	ID        string      `json:"id"`
	Source    string      `json:"source"`
	ChannelID string      `json:"channel_id"`
	ThreadID  string      `json:"thread_id,omitempty"`
	ReplyToID string      `json:"reply_to_id,omitempty"`
	Author    BotIdentity `json:"author"`
	Body      string      `json:"body"`
	Notice    bool        `json:"notice,omitempty"` // error notice rather than a model answer
}

// ReplyTo builds the reply envelope for ev carrying body.
func ReplyTo(ev Event, author BotIdentity, body string) Reply {
	return Reply{
		Source:    ev.Source,
		ChannelID: ev.ChannelID,
		ThreadID:  ev.ThreadID,
		ReplyToID: ev.ID,
		Author:    author,
		Body:      body,
	}
}

// Runtime parameter keys.
const (
	ParamAPIKey   = "gemini_discuss.gemini_api_key"
	ParamModelKey = "gemini_discuss.gemini_model"
)

// ParameterStore is the key-value configuration read at call time. A missing
// key returns "" and a nil error.
type ParameterStore interface {
	Get(ctx context.Context, key string) (string, error)
}
