package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrAppointmentNotFound = errors.New("appointment not found")

// Service provides business logic for the scheduling domain. It also hosts
// the relationship oracle the messaging gate consults: two users are related
// iff at least one appointment pairs them, in either orientation, whatever
// its status. Cancelling an appointment does not revoke the relationship.
type Service struct {
	appointments AppointmentRepository
}

// NewService creates a new scheduling service.
func NewService(appointments AppointmentRepository) *Service {
	return &Service{appointments: appointments}
}

// Book creates an appointment between a patient and a doctor.
func (s *Service) Book(ctx context.Context, patientID, doctorID uuid.UUID, at time.Time, reason string) (*Appointment, error) {
	if patientID == uuid.Nil || doctorID == uuid.Nil {
		return nil, fmt.Errorf("patient_id and doctor_id are required")
	}
	if patientID == doctorID {
		return nil, fmt.Errorf("patient and doctor must differ")
	}
	if at.IsZero() {
		return nil, fmt.Errorf("scheduled_at is required")
	}
	a := &Appointment{
		PatientID:   patientID,
		DoctorID:    doctorID,
		ScheduledAt: at,
		Reason:      reason,
		Status:      StatusScheduled,
	}
	if err := s.appointments.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Get returns a single appointment.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

// SetStatus transitions an appointment's status.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	if !ValidStatus(status) {
		return fmt.Errorf("unknown status %q", status)
	}
	return s.appointments.UpdateStatus(ctx, id, status)
}

// ListByPatient returns a patient's appointments, newest first.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.ListByPatient(ctx, patientID, limit, offset)
}

// ListByDoctor returns a doctor's appointments, newest first.
func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.ListByDoctor(ctx, doctorID, limit, offset)
}

// ExistsBetween implements the relationship oracle consumed by the messaging
// authorization gate.
func (s *Service) ExistsBetween(ctx context.Context, a, b uuid.UUID) (bool, error) {
	return s.appointments.ExistsBetween(ctx, a, b)
}
