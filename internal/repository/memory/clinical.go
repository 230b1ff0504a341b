package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/alert-engine/internal/model"
	"github.com/jwalitptl/alert-engine/internal/repository"
	apperrors "github.com/jwalitptl/alert-engine/pkg/errors"
)

// Provider operation names, used to inject failures and count calls.
const (
	OpMeasurements = "measurements"
	OpIntakes      = "intakes"
	OpSchedules    = "schedules"
	OpSymptoms     = "symptoms"
	OpDoctors      = "doctors"
)

// ClinicalStore is an in-memory clinical record. It serves as both the
// ClinicalDataProvider and the PatientDirectory.
type ClinicalStore struct {
	mu           sync.RWMutex
	patients     map[uuid.UUID]model.Patient
	doctors      map[uuid.UUID][]uuid.UUID
	measurements map[uuid.UUID][]model.Measurement
	intakes      map[uuid.UUID][]model.Intake
	schedules    map[uuid.UUID][]model.ScheduledDose
	symptoms     map[uuid.UUID][]model.Symptom

	// failures[patient][op]; uuid.Nil matches every patient.
	failures map[uuid.UUID]map[string]error
	delay    time.Duration
	panicOn  map[uuid.UUID]bool
	calls    sync.Map // op -> *atomic.Int64
}

var (
	_ repository.ClinicalDataProvider = (*ClinicalStore)(nil)
	_ repository.PatientDirectory     = (*ClinicalStore)(nil)
)

func NewClinicalStore() *ClinicalStore {
	return &ClinicalStore{
		patients:     make(map[uuid.UUID]model.Patient),
		doctors:      make(map[uuid.UUID][]uuid.UUID),
		measurements: make(map[uuid.UUID][]model.Measurement),
		intakes:      make(map[uuid.UUID][]model.Intake),
		schedules:    make(map[uuid.UUID][]model.ScheduledDose),
		symptoms:     make(map[uuid.UUID][]model.Symptom),
		failures:     make(map[uuid.UUID]map[string]error),
		panicOn:      make(map[uuid.UUID]bool),
	}
}

func (s *ClinicalStore) AddPatient(p model.Patient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Status == "" {
		p.Status = model.PatientStatusActive
	}
	s.patients[p.ID] = p
}

// SetDoctors replaces the doctors assigned to a patient.
func (s *ClinicalStore) SetDoctors(patientID uuid.UUID, doctors ...uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doctors[patientID] = append([]uuid.UUID(nil), doctors...)
}

func (s *ClinicalStore) AddMeasurements(ms ...model.Measurement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range ms {
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		s.measurements[m.PatientID] = append(s.measurements[m.PatientID], m)
	}
}

func (s *ClinicalStore) AddIntakes(is ...model.Intake) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, in := range is {
		if in.ID == uuid.Nil {
			in.ID = uuid.New()
		}
		s.intakes[in.PatientID] = append(s.intakes[in.PatientID], in)
	}
}

func (s *ClinicalStore) AddSchedules(ds ...model.ScheduledDose) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range ds {
		s.schedules[d.PatientID] = append(s.schedules[d.PatientID], d)
	}
}

func (s *ClinicalStore) AddSymptoms(ss ...model.Symptom) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sy := range ss {
		if sy.ID == uuid.Nil {
			sy.ID = uuid.New()
		}
		s.symptoms[sy.PatientID] = append(s.symptoms[sy.PatientID], sy)
	}
}

// FailOn makes op return err for the patient. uuid.Nil applies to all patients.
func (s *ClinicalStore) FailOn(patientID uuid.UUID, op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures[patientID] == nil {
		s.failures[patientID] = make(map[string]error)
	}
	s.failures[patientID][op] = err
}

// PanicOn makes every data call for the patient panic.
func (s *ClinicalStore) PanicOn(patientID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panicOn[patientID] = true
}

// SetDelay makes every provider call wait d or until its context is done.
func (s *ClinicalStore) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Calls returns how many times op was invoked.
func (s *ClinicalStore) Calls(op string) int64 {
	v, ok := s.calls.Load(op)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

func (s *ClinicalStore) enter(ctx context.Context, patientID uuid.UUID, op string) error {
	v, _ := s.calls.LoadOrStore(op, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)

	s.mu.RLock()
	delay := s.delay
	shouldPanic := s.panicOn[patientID]
	err := s.failures[patientID][op]
	if err == nil {
		err = s.failures[uuid.Nil][op]
	}
	s.mu.RUnlock()

	if shouldPanic {
		panic("clinical store: injected panic for patient " + patientID.String())
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (s *ClinicalStore) GetMeasurements(ctx context.Context, patientID uuid.UUID, window model.TimeWindow) ([]model.Measurement, error) {
	if err := s.enter(ctx, patientID, OpMeasurements); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Measurement, 0)
	for _, m := range s.measurements[patientID] {
		if window.Contains(m.TakenAt) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TakenAt.Before(out[j].TakenAt) })
	return out, nil
}

func (s *ClinicalStore) GetIntakes(ctx context.Context, patientID uuid.UUID, window model.TimeWindow) ([]model.Intake, error) {
	if err := s.enter(ctx, patientID, OpIntakes); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Intake, 0)
	for _, in := range s.intakes[patientID] {
		if window.Contains(in.TakenAt) {
			out = append(out, in)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TakenAt.Before(out[j].TakenAt) })
	return out, nil
}

func (s *ClinicalStore) GetSchedules(ctx context.Context, patientID uuid.UUID, window model.TimeWindow) ([]model.ScheduledDose, error) {
	if err := s.enter(ctx, patientID, OpSchedules); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ScheduledDose, 0)
	for _, d := range s.schedules[patientID] {
		if window.Contains(d.DueAt) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

func (s *ClinicalStore) GetSymptoms(ctx context.Context, patientID uuid.UUID, window model.TimeWindow) ([]model.Symptom, error) {
	if err := s.enter(ctx, patientID, OpSymptoms); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Symptom, 0)
	for _, sy := range s.symptoms[patientID] {
		if window.Contains(sy.ReportedAt) {
			out = append(out, sy)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReportedAt.Before(out[j].ReportedAt) })
	return out, nil
}

func (s *ClinicalStore) GetAssignedDoctors(ctx context.Context, patientID uuid.UUID) ([]uuid.UUID, error) {
	if err := s.enter(ctx, patientID, OpDoctors); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(make([]uuid.UUID, 0, len(s.doctors[patientID])), s.doctors[patientID]...), nil
}

// ListActivePatients returns active patients ordered by id.
func (s *ClinicalStore) ListActivePatients(_ context.Context) ([]model.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Patient, 0, len(s.patients))
	for _, p := range s.patients {
		if p.Status == model.PatientStatusActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *ClinicalStore) GetPatient(_ context.Context, id uuid.UUID) (*model.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, apperrors.NotFound("patient", nil)
	}
	return &p, nil
}
