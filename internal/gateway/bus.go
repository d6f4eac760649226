package gateway

import "github.com/fpt/gemini-discuss/pkg/discuss"

// MessageBus decouples substrate adapters from the responder. Replies do not
// travel on the bus; they are sent synchronously so delivery failures reach
// the handler.
type MessageBus struct {
	Inbound chan discuss.Event
}

// NewMessageBus creates a message bus with a buffered inbound channel.
func NewMessageBus(bufferSize int) *MessageBus {
	return &MessageBus{
		Inbound: make(chan discuss.Event, bufferSize),
	}
}
