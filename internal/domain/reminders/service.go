package reminders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"
)

var (
	ErrReminderNotFound = errors.New("reminder not found")
	ErrNotOwner         = errors.New("not the reminder's owner")
)

// Service provides business logic for reminders. Schedules are standard
// five-field cron expressions, validated with gronx on every write.
type Service struct {
	reminders ReminderRepository
	cron      *gronx.Gronx
}

// NewService creates a new reminders service.
func NewService(reminders ReminderRepository) *Service {
	return &Service{reminders: reminders, cron: gronx.New()}
}

// Create stores a new active reminder for the owner.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, title, message, schedule string) (*Reminder, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if !s.cron.IsValid(schedule) {
		return nil, fmt.Errorf("invalid cron schedule %q", schedule)
	}
	rem := &Reminder{
		UserID:   ownerID,
		Title:    title,
		Message:  message,
		Schedule: schedule,
		Active:   true,
	}
	if err := s.reminders.Create(ctx, rem); err != nil {
		return nil, err
	}
	return rem, nil
}

// List returns the owner's reminders, newest first.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Reminder, int, error) {
	return s.reminders.ListByUser(ctx, ownerID, limit, offset)
}

// Update modifies a reminder; only its owner may do so.
func (s *Service) Update(ctx context.Context, ownerID, id uuid.UUID, title, message, schedule string, active *bool) (*Reminder, error) {
	rem, err := s.reminders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rem.UserID != ownerID {
		return nil, ErrNotOwner
	}
	if title != "" {
		rem.Title = strings.TrimSpace(title)
	}
	if message != "" {
		rem.Message = message
	}
	if schedule != "" {
		if !s.cron.IsValid(schedule) {
			return nil, fmt.Errorf("invalid cron schedule %q", schedule)
		}
		rem.Schedule = schedule
	}
	if active != nil {
		rem.Active = *active
	}
	if err := s.reminders.Update(ctx, rem); err != nil {
		return nil, err
	}
	return rem, nil
}

// Delete removes a reminder; only its owner may do so.
func (s *Service) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	rem, err := s.reminders.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rem.UserID != ownerID {
		return ErrNotOwner
	}
	return s.reminders.Delete(ctx, id)
}
