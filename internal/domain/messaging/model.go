package messaging

import (
	"time"

	"github.com/google/uuid"
)

// Message is one durable chat message between two users.
//
// Seq is a store-assigned monotone insertion counter. History ordering is
// created_at first, seq second, so two messages committed within the
// timestamp resolution still come back in insertion order.
//
// CorrelationID is a client-chosen token echoed back on the delivery of the
// sender's own message so optimistic UI entries can be reconciled. It is
// never persisted. SenderName and ReceiverName are display denormalizations
// filled in at read time.
type Message struct {
	ID             uuid.UUID `json:"id"`
	Seq            int64     `json:"-"`
	ConversationID string    `json:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	ReceiverID     uuid.UUID `json:"receiver_id"`
	Text           string    `json:"text"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`

	CorrelationID string `json:"correlation_id,omitempty"`
	SenderName    string `json:"sender_name,omitempty"`
	ReceiverName  string `json:"receiver_name,omitempty"`
}
