package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/alert-engine/internal/model"
	apperrors "github.com/jwalitptl/alert-engine/pkg/errors"
)

func TestClinicalRepository_EmptyResultsAreNotNil(t *testing.T) {
	mock, base := setupMockDB(t)
	repo := NewClinicalRepository(base)
	patientID := uuid.New()
	asOf := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	window := model.WindowEndingAt(asOf, 24*time.Hour)

	mock.ExpectQuery(`FROM measurements`).
		WithArgs(patientID, window.Start, window.End).
		WillReturnRows(sqlmock.NewRows([]string{"id", "patient_id", "value", "unit", "taken_at"}))
	mock.ExpectQuery(`FROM intakes`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "patient_id", "schedule_id", "taken_at"}))
	mock.ExpectQuery(`FROM schedule_doses`).
		WillReturnRows(sqlmock.NewRows([]string{"schedule_id", "patient_id", "medication", "due_at"}))
	mock.ExpectQuery(`FROM symptoms`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "patient_id", "code", "intensity", "reported_at"}))
	mock.ExpectQuery(`FROM patient_doctors`).
		WillReturnRows(sqlmock.NewRows([]string{"doctor_id"}))

	ctx := context.Background()
	measurements, err := repo.GetMeasurements(ctx, patientID, window)
	require.NoError(t, err)
	assert.NotNil(t, measurements)

	intakes, err := repo.GetIntakes(ctx, patientID, window)
	require.NoError(t, err)
	assert.NotNil(t, intakes)

	schedules, err := repo.GetSchedules(ctx, patientID, window)
	require.NoError(t, err)
	assert.NotNil(t, schedules)

	symptoms, err := repo.GetSymptoms(ctx, patientID, window)
	require.NoError(t, err)
	assert.NotNil(t, symptoms)

	doctors, err := repo.GetAssignedDoctors(ctx, patientID)
	require.NoError(t, err)
	assert.NotNil(t, doctors)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClinicalRepository_GetMeasurements_MissingValue(t *testing.T) {
	mock, base := setupMockDB(t)
	repo := NewClinicalRepository(base)
	patientID := uuid.New()
	at := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM measurements`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "patient_id", "value", "unit", "taken_at"}).
			AddRow(uuid.NewString(), patientID.String(), 260.0, "mg/dL", at).
			AddRow(uuid.NewString(), patientID.String(), nil, "mg/dL", at.Add(time.Hour)))

	got, err := repo.GetMeasurements(context.Background(), patientID, model.WindowEndingAt(at.Add(2*time.Hour), 24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotNil(t, got[0].Value)
	assert.Equal(t, 260.0, *got[0].Value)
	assert.Nil(t, got[1].Value)
}

func TestClinicalRepository_Patients(t *testing.T) {
	mock, base := setupMockDB(t)
	repo := NewClinicalRepository(base)
	p1, p2 := uuid.New(), uuid.New()

	mock.ExpectQuery(`FROM patients`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "conditions"}).
			AddRow(p1.String(), "active", "{diabetes_t1}").
			AddRow(p2.String(), "active", "{}"))

	patients, err := repo.ListActivePatients(context.Background())
	require.NoError(t, err)
	require.Len(t, patients, 2)
	assert.True(t, patients[0].HasCondition("diabetes_t1"))
	assert.False(t, patients[1].HasCondition("diabetes_t1"))

	missing := uuid.New()
	mock.ExpectQuery(`FROM patients WHERE id = \$1`).
		WithArgs(missing).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "conditions"}))

	_, err = repo.GetPatient(context.Background(), missing)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}
