package reminders

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ReminderRepository abstracts persistence of reminders.
type ReminderRepository interface {
	Create(ctx context.Context, r *Reminder) error
	GetByID(ctx context.Context, id uuid.UUID) (*Reminder, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Reminder, int, error)
	ListActive(ctx context.Context) ([]*Reminder, error)
	Update(ctx context.Context, r *Reminder) error
	MarkFired(ctx context.Context, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}
