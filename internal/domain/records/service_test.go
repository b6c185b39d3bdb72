package records

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type mockRecordRepo struct {
	recs map[uuid.UUID]*Record
}

func newMockRecordRepo() *mockRecordRepo {
	return &mockRecordRepo{recs: make(map[uuid.UUID]*Record)}
}

func (m *mockRecordRepo) Create(_ context.Context, r *Record) error {
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	r.UpdatedAt = time.Now()
	m.recs[r.ID] = r
	return nil
}

func (m *mockRecordRepo) GetByID(_ context.Context, id uuid.UUID) (*Record, error) {
	r, ok := m.recs[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return r, nil
}

func (m *mockRecordRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	var result []*Record
	for _, r := range m.recs {
		if r.PatientID == patientID {
			result = append(result, r)
		}
	}
	return result, len(result), nil
}

func (m *mockRecordRepo) Update(_ context.Context, r *Record) error {
	if _, ok := m.recs[r.ID]; !ok {
		return ErrRecordNotFound
	}
	m.recs[r.ID] = r
	return nil
}

func (m *mockRecordRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.recs[id]; !ok {
		return ErrRecordNotFound
	}
	delete(m.recs, id)
	return nil
}

// mockOracle relates exactly the pairs registered via link.
type mockOracle struct {
	pairs map[[2]uuid.UUID]bool
	err   error
}

func newMockOracle() *mockOracle {
	return &mockOracle{pairs: make(map[[2]uuid.UUID]bool)}
}

func (m *mockOracle) link(a, b uuid.UUID) {
	m.pairs[[2]uuid.UUID{a, b}] = true
	m.pairs[[2]uuid.UUID{b, a}] = true
}

func (m *mockOracle) ExistsBetween(_ context.Context, a, b uuid.UUID) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.pairs[[2]uuid.UUID{a, b}], nil
}

func TestCreate_RequiresRelationship(t *testing.T) {
	oracle := newMockOracle()
	svc := NewService(newMockRecordRepo(), oracle)
	doctor, patient := uuid.New(), uuid.New()

	if _, err := svc.Create(context.Background(), doctor, patient, TypeNote, "Visit notes", "all good"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized without a relationship, got %v", err)
	}

	oracle.link(doctor, patient)
	rec, err := svc.Create(context.Background(), doctor, patient, TypeNote, "Visit notes", "all good")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if rec.DoctorID != doctor || rec.PatientID != patient {
		t.Fatal("record participants mismatch")
	}
}

func TestCreate_OracleFailureDeniesWrite(t *testing.T) {
	oracle := newMockOracle()
	oracle.err = errors.New("db down")
	svc := NewService(newMockRecordRepo(), oracle)

	if _, err := svc.Create(context.Background(), uuid.New(), uuid.New(), TypeReport, "Labs", ""); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized on oracle failure, got %v", err)
	}
}

func TestCreate_Validation(t *testing.T) {
	oracle := newMockOracle()
	doctor, patient := uuid.New(), uuid.New()
	oracle.link(doctor, patient)
	svc := NewService(newMockRecordRepo(), oracle)

	if _, err := svc.Create(context.Background(), doctor, patient, "memo", "Title", ""); err == nil {
		t.Fatal("expected error for unknown type")
	}
	if _, err := svc.Create(context.Background(), doctor, patient, TypeNote, "   ", ""); err == nil {
		t.Fatal("expected error for blank title")
	}
}

func TestGet_Authorization(t *testing.T) {
	oracle := newMockOracle()
	doctor, patient, stranger := uuid.New(), uuid.New(), uuid.New()
	oracle.link(doctor, patient)
	svc := NewService(newMockRecordRepo(), oracle)

	rec, err := svc.Create(context.Background(), doctor, patient, TypePrescription, "Rx", "amoxicillin")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	cases := []struct {
		caller  uuid.UUID
		role    string
		allowed bool
	}{
		{patient, "patient", true},
		{doctor, "doctor", true},
		{stranger, "admin", true},
		{stranger, "patient", false},
		{stranger, "doctor", false},
	}
	for _, tc := range cases {
		_, err := svc.Get(context.Background(), tc.caller, tc.role, rec.ID)
		if tc.allowed && err != nil {
			t.Fatalf("role %s should read record, got %v", tc.role, err)
		}
		if !tc.allowed && !errors.Is(err, ErrNotAuthorized) {
			t.Fatalf("caller %s/%s should be denied, got %v", tc.caller, tc.role, err)
		}
	}
}

func TestUpdate_OnlyAuthor(t *testing.T) {
	oracle := newMockOracle()
	doctor, patient, other := uuid.New(), uuid.New(), uuid.New()
	oracle.link(doctor, patient)
	svc := NewService(newMockRecordRepo(), oracle)

	rec, err := svc.Create(context.Background(), doctor, patient, TypeNote, "Initial", "v1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := svc.Update(context.Background(), other, rec.ID, "", "Hacked", ""); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for non-author, got %v", err)
	}

	updated, err := svc.Update(context.Background(), doctor, rec.ID, "", "Revised", "v2")
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Title != "Revised" || updated.Body != "v2" {
		t.Fatalf("update not applied: %+v", updated)
	}
}

func TestDelete_OnlyAuthor(t *testing.T) {
	oracle := newMockOracle()
	doctor, patient := uuid.New(), uuid.New()
	oracle.link(doctor, patient)
	repo := newMockRecordRepo()
	svc := NewService(repo, oracle)

	rec, err := svc.Create(context.Background(), doctor, patient, TypeNote, "Note", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := svc.Delete(context.Background(), uuid.New(), rec.ID); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if err := svc.Delete(context.Background(), doctor, rec.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := repo.GetByID(context.Background(), rec.ID); !errors.Is(err, ErrRecordNotFound) {
		t.Fatal("record should be gone")
	}
}
