package reminders

import (
	"context"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Notifier delivers a due reminder to the owner's live connections.
// Delivery is best effort; a missed push is not retried.
type Notifier interface {
	NotifyUser(userID uuid.UUID, event string, payload interface{})
}

// Scheduler wakes once a minute, loads the active reminders and fires the
// ones whose cron expression is due at that minute.
type Scheduler struct {
	reminders ReminderRepository
	notifier  Notifier
	cron      *gronx.Gronx
	log       zerolog.Logger
}

// NewScheduler creates a reminder scheduler.
func NewScheduler(reminders ReminderRepository, notifier Notifier, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		reminders: reminders,
		notifier:  notifier,
		cron:      gronx.New(),
		log:       log.With().Str("component", "reminder-scheduler").Logger(),
	}
}

// Run blocks until ctx is cancelled, ticking on minute boundaries.
func (s *Scheduler) Run(ctx context.Context) {
	// Align the first tick to the top of the next minute so IsDue sees
	// the minute it describes.
	first := time.Until(time.Now().Truncate(time.Minute).Add(time.Minute))
	timer := time.NewTimer(first)
	defer timer.Stop()

	s.log.Info().Msg("reminder scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("reminder scheduler stopped")
			return
		case now := <-timer.C:
			s.tick(ctx, now)
			timer.Reset(time.Until(now.Truncate(time.Minute).Add(time.Minute)))
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	active, err := s.reminders.ListActive(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load active reminders")
		return
	}
	for _, rem := range active {
		due, err := s.cron.IsDue(rem.Schedule, now)
		if err != nil {
			s.log.Warn().Err(err).Str("reminder_id", rem.ID.String()).Msg("unparseable schedule, skipping")
			continue
		}
		if !due {
			continue
		}
		s.fire(ctx, rem, now)
	}
}

func (s *Scheduler) fire(ctx context.Context, rem *Reminder, now time.Time) {
	s.notifier.NotifyUser(rem.UserID, "reminder:due", map[string]interface{}{
		"id":      rem.ID,
		"title":   rem.Title,
		"message": rem.Message,
		"due_at":  now.UTC(),
	})
	if err := s.reminders.MarkFired(ctx, rem.ID, now); err != nil {
		s.log.Error().Err(err).Str("reminder_id", rem.ID.String()).Msg("failed to record firing")
	}
	s.log.Debug().Str("reminder_id", rem.ID.String()).Msg("reminder fired")
}
