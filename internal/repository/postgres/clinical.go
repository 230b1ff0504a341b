package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jwalitptl/alert-engine/internal/model"
	"github.com/jwalitptl/alert-engine/internal/repository"
)

// ClinicalRepository reads the clinical record tables. It backs both the
// ClinicalDataProvider and the PatientDirectory.
type ClinicalRepository struct {
	BaseRepository
}

func NewClinicalRepository(base BaseRepository) *ClinicalRepository {
	return &ClinicalRepository{base}
}

var (
	_ repository.ClinicalDataProvider = (*ClinicalRepository)(nil)
	_ repository.PatientDirectory     = (*ClinicalRepository)(nil)
)

func (r *ClinicalRepository) GetMeasurements(ctx context.Context, patientID uuid.UUID, window model.TimeWindow) ([]model.Measurement, error) {
	var out []model.Measurement
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, patient_id, value, unit, taken_at
		FROM measurements
		WHERE patient_id = $1 AND taken_at BETWEEN $2 AND $3
		ORDER BY taken_at`, patientID, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("failed to get measurements: %w", err)
	}
	return emptyIfNil(out), nil
}

func (r *ClinicalRepository) GetIntakes(ctx context.Context, patientID uuid.UUID, window model.TimeWindow) ([]model.Intake, error) {
	var out []model.Intake
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, patient_id, schedule_id, taken_at
		FROM intakes
		WHERE patient_id = $1 AND taken_at BETWEEN $2 AND $3
		ORDER BY taken_at`, patientID, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("failed to get intakes: %w", err)
	}
	return emptyIfNil(out), nil
}

func (r *ClinicalRepository) GetSchedules(ctx context.Context, patientID uuid.UUID, window model.TimeWindow) ([]model.ScheduledDose, error) {
	var out []model.ScheduledDose
	err := r.db.SelectContext(ctx, &out, `
		SELECT schedule_id, patient_id, medication, due_at
		FROM schedule_doses
		WHERE patient_id = $1 AND due_at BETWEEN $2 AND $3
		ORDER BY due_at`, patientID, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("failed to get schedules: %w", err)
	}
	return emptyIfNil(out), nil
}

func (r *ClinicalRepository) GetSymptoms(ctx context.Context, patientID uuid.UUID, window model.TimeWindow) ([]model.Symptom, error) {
	var out []model.Symptom
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, patient_id, code, intensity, reported_at
		FROM symptoms
		WHERE patient_id = $1 AND reported_at BETWEEN $2 AND $3
		ORDER BY reported_at`, patientID, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("failed to get symptoms: %w", err)
	}
	return emptyIfNil(out), nil
}

func (r *ClinicalRepository) GetAssignedDoctors(ctx context.Context, patientID uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	err := r.db.SelectContext(ctx, &out, `
		SELECT doctor_id
		FROM patient_doctors
		WHERE patient_id = $1
		ORDER BY doctor_id`, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get assigned doctors: %w", err)
	}
	return emptyIfNil(out), nil
}

type patientRow struct {
	ID         uuid.UUID           `db:"id"`
	Status     model.PatientStatus `db:"status"`
	Conditions pq.StringArray      `db:"conditions"`
}

func (p patientRow) toModel() model.Patient {
	return model.Patient{ID: p.ID, Status: p.Status, Conditions: []string(p.Conditions)}
}

func (r *ClinicalRepository) ListActivePatients(ctx context.Context) ([]model.Patient, error) {
	var rows []patientRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, status, conditions
		FROM patients
		WHERE status = 'active'
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active patients: %w", err)
	}
	out := make([]model.Patient, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (r *ClinicalRepository) GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	var row patientRow
	err := r.db.GetContext(ctx, &row, `SELECT id, status, conditions FROM patients WHERE id = $1`, id)
	if err != nil {
		return nil, notFoundIfNoRows("patient", err)
	}
	p := row.toModel()
	return &p, nil
}
