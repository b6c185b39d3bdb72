package records

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrNotAuthorized  = errors.New("not authorized for this record")
)

// RelationshipOracle reports whether two users share at least one
// appointment. Implemented by the scheduling service.
type RelationshipOracle interface {
	ExistsBetween(ctx context.Context, a, b uuid.UUID) (bool, error)
}

// Service provides business logic for health records. Doctors may only
// author records for patients they share an appointment with; on oracle
// failure the write is denied.
type Service struct {
	records RecordRepository
	oracle  RelationshipOracle
}

// NewService creates a new records service.
func NewService(records RecordRepository, oracle RelationshipOracle) *Service {
	return &Service{records: records, oracle: oracle}
}

// Create authors a record for a patient after checking the doctor is related.
func (s *Service) Create(ctx context.Context, doctorID, patientID uuid.UUID, recType, title, body string) (*Record, error) {
	if !ValidType(recType) {
		return nil, fmt.Errorf("unknown record type %q", recType)
	}
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("title is required")
	}
	related, err := s.oracle.ExistsBetween(ctx, doctorID, patientID)
	if err != nil || !related {
		return nil, ErrNotAuthorized
	}
	rec := &Record{
		PatientID: patientID,
		DoctorID:  doctorID,
		Type:      recType,
		Title:     strings.TrimSpace(title),
		Body:      body,
	}
	if err := s.records.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get returns a record if the caller is its patient, its author, or an admin.
func (s *Service) Get(ctx context.Context, callerID uuid.UUID, callerRole string, id uuid.UUID) (*Record, error) {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canRead(rec, callerID, callerRole) {
		return nil, ErrNotAuthorized
	}
	return rec, nil
}

// ListByPatient returns a patient's records, newest first.
func (s *Service) ListByPatient(ctx context.Context, callerID uuid.UUID, callerRole string, patientID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	if callerRole != "admin" && callerID != patientID {
		related, err := s.oracle.ExistsBetween(ctx, callerID, patientID)
		if err != nil || !related {
			return nil, 0, ErrNotAuthorized
		}
	}
	return s.records.ListByPatient(ctx, patientID, limit, offset)
}

// Update modifies a record; only the authoring doctor may update it.
func (s *Service) Update(ctx context.Context, doctorID, id uuid.UUID, recType, title, body string) (*Record, error) {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.DoctorID != doctorID {
		return nil, ErrNotAuthorized
	}
	if recType != "" {
		if !ValidType(recType) {
			return nil, fmt.Errorf("unknown record type %q", recType)
		}
		rec.Type = recType
	}
	if title != "" {
		rec.Title = strings.TrimSpace(title)
	}
	if body != "" {
		rec.Body = body
	}
	if err := s.records.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes a record; only the authoring doctor may delete it.
func (s *Service) Delete(ctx context.Context, doctorID, id uuid.UUID) error {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rec.DoctorID != doctorID {
		return ErrNotAuthorized
	}
	return s.records.Delete(ctx, id)
}

func (s *Service) canRead(rec *Record, callerID uuid.UUID, callerRole string) bool {
	return callerRole == "admin" || rec.PatientID == callerID || rec.DoctorID == callerID
}
