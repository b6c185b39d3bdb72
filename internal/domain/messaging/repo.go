package messaging

import (
	"context"

	"github.com/google/uuid"
)

// MessageRepository abstracts durable message storage.
type MessageRepository interface {
	// Append persists a message at the end of its conversation.
	Append(ctx context.Context, m *Message) error
	// History returns the full conversation in insertion order: ascending
	// created_at, ties broken by the monotone seq counter.
	History(ctx context.Context, conversationID string) ([]*Message, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Message, error)
	// MarkRead flips the read flag. Idempotent.
	MarkRead(ctx context.Context, id uuid.UUID) error
}
