package scheduling

import (
	"context"

	"github.com/google/uuid"
)

// AppointmentRepository abstracts persistence of appointments.
type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	// ExistsBetween reports whether any appointment pairs the two users in
	// either patient/doctor orientation, regardless of status.
	ExistsBetween(ctx context.Context, a, b uuid.UUID) (bool, error)
}
