package gateway

import (
	"context"

	"github.com/fpt/gemini-discuss/pkg/discuss"
)

// Adapter names, used as discuss.Event.Source.
const (
	SourceDiscord  = "discord"
	SourceTelegram = "telegram"
	SourceAMQP     = "amqp"
)

// Adapter is the interface all substrate adapters implement.
type Adapter interface {
	// Name returns the source name stamped on events from this adapter.
	Name() string
	// Start begins listening for messages. Blocks until ctx is cancelled.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the adapter.
	Stop() error
	// Send posts a bot reply to the conversation it addresses.
	Send(ctx context.Context, reply discuss.Reply) error
	// SendTyping shows a typing indicator in the channel.
	SendTyping(ctx context.Context, channelID string) error
	// FetchAttachment downloads the bytes of att. Attachments that already
	// carry data are returned unchanged.
	FetchAttachment(ctx context.Context, att discuss.Attachment) ([]byte, error)
}
