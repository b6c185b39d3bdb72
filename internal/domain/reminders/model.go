package reminders

import (
	"time"

	"github.com/google/uuid"
)

// Reminder is a recurring notification owned by a single user, fired on a
// cron schedule by the background scheduler.
type Reminder struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	Schedule    string     `json:"schedule"`
	Active      bool       `json:"active"`
	LastFiredAt *time.Time `json:"last_fired_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
