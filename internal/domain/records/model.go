package records

import (
	"time"

	"github.com/google/uuid"
)

// Record types.
const (
	TypeNote         = "note"
	TypeReport       = "report"
	TypePrescription = "prescription"
)

func ValidType(t string) bool {
	switch t {
	case TypeNote, TypeReport, TypePrescription:
		return true
	}
	return false
}

// Record is a clinical health record authored by a doctor for a patient.
type Record struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
