package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

// -- Mock Repository --

type mockApptRepo struct {
	appts map[uuid.UUID]*Appointment
}

func newMockApptRepo() *mockApptRepo {
	return &mockApptRepo{appts: make(map[uuid.UUID]*Appointment)}
}

func (m *mockApptRepo) Create(_ context.Context, a *Appointment) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = time.Now()
	m.appts[a.ID] = a
	return nil
}

func (m *mockApptRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return a, nil
}

func (m *mockApptRepo) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	a, ok := m.appts[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	a.Status = status
	return nil
}

func (m *mockApptRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	var result []*Appointment
	for _, a := range m.appts {
		if a.PatientID == patientID {
			result = append(result, a)
		}
	}
	return result, len(result), nil
}

func (m *mockApptRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	var result []*Appointment
	for _, a := range m.appts {
		if a.DoctorID == doctorID {
			result = append(result, a)
		}
	}
	return result, len(result), nil
}

func (m *mockApptRepo) ExistsBetween(_ context.Context, x, y uuid.UUID) (bool, error) {
	for _, a := range m.appts {
		if (a.PatientID == x && a.DoctorID == y) || (a.PatientID == y && a.DoctorID == x) {
			return true, nil
		}
	}
	return false, nil
}

// -- Tests --

func TestBook_CreatesScheduledAppointment(t *testing.T) {
	svc := NewService(newMockApptRepo())
	patient, doctor := uuid.New(), uuid.New()

	a, err := svc.Book(context.Background(), patient, doctor, time.Now().Add(24*time.Hour), "checkup")
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if a.Status != StatusScheduled {
		t.Fatalf("expected status scheduled, got %s", a.Status)
	}
	if a.ID == uuid.Nil {
		t.Fatal("expected an assigned id")
	}
}

func TestBook_Validation(t *testing.T) {
	svc := NewService(newMockApptRepo())
	now := time.Now()
	u := uuid.New()

	if _, err := svc.Book(context.Background(), uuid.Nil, u, now, ""); err == nil {
		t.Fatal("expected error for nil patient id")
	}
	if _, err := svc.Book(context.Background(), u, u, now, ""); err == nil {
		t.Fatal("expected error when patient equals doctor")
	}
	if _, err := svc.Book(context.Background(), u, uuid.New(), time.Time{}, ""); err == nil {
		t.Fatal("expected error for zero time")
	}
}

func TestSetStatus_RejectsUnknown(t *testing.T) {
	repo := newMockApptRepo()
	svc := NewService(repo)
	a, err := svc.Book(context.Background(), uuid.New(), uuid.New(), time.Now(), "")
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	if err := svc.SetStatus(context.Background(), a.ID, "rescheduled-maybe"); err == nil {
		t.Fatal("expected error for unknown status")
	}
	if err := svc.SetStatus(context.Background(), a.ID, StatusCancelled); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
}

func TestOracle_RelatedInEitherOrientation(t *testing.T) {
	repo := newMockApptRepo()
	svc := NewService(repo)
	patient, doctor := uuid.New(), uuid.New()

	if _, err := svc.Book(context.Background(), patient, doctor, time.Now(), ""); err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	for _, pair := range [][2]uuid.UUID{{patient, doctor}, {doctor, patient}} {
		ok, err := svc.ExistsBetween(context.Background(), pair[0], pair[1])
		if err != nil {
			t.Fatalf("ExistsBetween failed: %v", err)
		}
		if !ok {
			t.Fatalf("expected relationship between %s and %s", pair[0], pair[1])
		}
	}
}

func TestOracle_UnrelatedUsers(t *testing.T) {
	svc := NewService(newMockApptRepo())
	ok, err := svc.ExistsBetween(context.Background(), uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("ExistsBetween failed: %v", err)
	}
	if ok {
		t.Fatal("expected no relationship without an appointment")
	}
}

// Pins the current product behavior: cancelling an appointment does not
// revoke the messaging relationship it established.
func TestOracle_CancelledAppointmentStillLinks(t *testing.T) {
	repo := newMockApptRepo()
	svc := NewService(repo)
	patient, doctor := uuid.New(), uuid.New()

	a, err := svc.Book(context.Background(), patient, doctor, time.Now(), "")
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if err := svc.SetStatus(context.Background(), a.ID, StatusCancelled); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}

	ok, err := svc.ExistsBetween(context.Background(), patient, doctor)
	if err != nil {
		t.Fatalf("ExistsBetween failed: %v", err)
	}
	if !ok {
		t.Fatal("cancelled appointment should still establish the relationship")
	}
}
