package domain

import "context"

// Sender delivers text to a chat on the platform.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// UpdateHandler consumes inbound updates from a channel.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update InboundUpdate)
}

// UpdateHandlerFunc adapts a function to UpdateHandler.
type UpdateHandlerFunc func(ctx context.Context, update InboundUpdate)

// HandleUpdate calls f(ctx, update).
func (f UpdateHandlerFunc) HandleUpdate(ctx context.Context, update InboundUpdate) {
	f(ctx, update)
}
