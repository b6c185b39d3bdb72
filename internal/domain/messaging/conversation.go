package messaging

import (
	"github.com/google/uuid"
)

// ConversationID derives the canonical identifier for the conversation
// between two users. The two ids are ordered lexicographically before being
// joined, so both participants compute the same value regardless of argument
// order.
func ConversationID(a, b uuid.UUID) string {
	x, y := a.String(), b.String()
	if x > y {
		x, y = y, x
	}
	return x + ":" + y
}
