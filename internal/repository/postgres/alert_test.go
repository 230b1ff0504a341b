package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/alert-engine/internal/model"
	apperrors "github.com/jwalitptl/alert-engine/pkg/errors"
)

func setupMockDB(t *testing.T) (sqlmock.Sqlmock, BaseRepository) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return mock, NewBaseRepository(sqlx.NewDb(db, "postgres"))
}

var alertRowColumns = []string{
	"id", "patient_id", "alert_type", "rule_id", "severity", "context_kind", "context_ref",
	"window_start", "window_end", "note", "status", "created_by", "created_at", "detected_at", "resolved_by", "resolved_at",
	"recipient_warning", "warning_reason",
}

func newTestAlert() *model.Alert {
	id := uuid.New()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	return &model.Alert{
		ID:        id,
		PatientID: uuid.New(),
		AlertType: "glycemia_high",
		RuleID:    "glycemia-high-streak",
		Severity:  model.SeverityHigh,
		Context: model.TriggerContext{
			Kind:        model.ContextMeasurement,
			Ref:         uuid.NewString(),
			WindowStart: now.Add(-16 * time.Hour),
			WindowEnd:   now,
		},
		Status:     model.AlertStatusOpen,
		CreatedBy:  model.SystemActor,
		CreatedAt:  now,
		DetectedAt: now,
		Recipients: []model.AlertRecipient{
			{ID: uuid.New(), AlertID: id, UserID: uuid.New(), Role: model.RolePatient, DeliveryStatus: model.DeliveryPending},
		},
	}
}

func TestAlertRepository_Create_Success(t *testing.T) {
	mock, base := setupMockDB(t)
	repo := NewAlertRepository(base)
	a := newTestAlert()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO alerts`).
		WithArgs(a.ID, a.PatientID, a.AlertType, a.RuleID, sqlmock.AnyArg(), a.Context.Kind, a.Context.Ref,
			a.Context.Key(), sqlmock.AnyArg(), sqlmock.AnyArg(), a.Note, a.Status, a.CreatedBy, a.CreatedAt,
			a.DetectedAt, false, "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO alert_recipients`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), a))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepository_Create_UniqueViolationIsConflict(t *testing.T) {
	mock, base := setupMockDB(t)
	repo := NewAlertRepository(base)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO alerts`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), newTestAlert())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepository_Get_NotFound(t *testing.T) {
	mock, base := setupMockDB(t)
	repo := NewAlertRepository(base)
	id := uuid.New()

	mock.ExpectQuery(`FROM alerts a WHERE a\.id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(alertRowColumns))

	_, err := repo.Get(context.Background(), id)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepository_ListOpenByPatient_Empty(t *testing.T) {
	mock, base := setupMockDB(t)
	repo := NewAlertRepository(base)
	patientID := uuid.New()

	mock.ExpectQuery(`FROM alerts a`).
		WithArgs(patientID).
		WillReturnRows(sqlmock.NewRows(alertRowColumns))

	alerts, err := repo.ListOpenByPatient(context.Background(), patientID)
	require.NoError(t, err)
	assert.NotNil(t, alerts)
	assert.Empty(t, alerts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepository_Resolve(t *testing.T) {
	at := time.Date(2024, 3, 10, 13, 0, 0, 0, time.UTC)

	t.Run("unknown alert", func(t *testing.T) {
		mock, base := setupMockDB(t)
		repo := NewAlertRepository(base)
		id, actor := uuid.New(), uuid.New()

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE alerts`).
			WithArgs(id, actor, at).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT status FROM alerts`).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"status"}))
		mock.ExpectRollback()

		_, err := repo.Resolve(context.Background(), id, actor, at)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already resolved", func(t *testing.T) {
		mock, base := setupMockDB(t)
		repo := NewAlertRepository(base)
		id, actor := uuid.New(), uuid.New()

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE alerts`).
			WithArgs(id, actor, at).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT status FROM alerts`).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("resolved"))
		mock.ExpectRollback()

		_, err := repo.Resolve(context.Background(), id, actor, at)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("open alert", func(t *testing.T) {
		mock, base := setupMockDB(t)
		repo := NewAlertRepository(base)
		a := newTestAlert()
		actor := uuid.New()

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE alerts`).
			WithArgs(a.ID, actor, at).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE alert_recipients`).
			WithArgs(a.ID, at).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		mock.ExpectQuery(`FROM alerts a WHERE a\.id = \$1`).
			WithArgs(a.ID).
			WillReturnRows(sqlmock.NewRows(alertRowColumns).AddRow(
				a.ID.String(), a.PatientID.String(), a.AlertType, a.RuleID, "high", "measurement", a.Context.Ref,
				a.Context.WindowStart, a.Context.WindowEnd, "", "resolved", a.CreatedBy, a.CreatedAt, a.DetectedAt, actor.String(), at,
				false, "",
			))
		rec := a.Recipients[0]
		mock.ExpectQuery(`FROM alert_recipients`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "alert_id", "user_id", "role", "delivery_status", "resolved_at"}).
				AddRow(rec.ID.String(), a.ID.String(), rec.UserID.String(), "patient", "resolved", at))

		got, err := repo.Resolve(context.Background(), a.ID, actor, at)
		require.NoError(t, err)
		assert.Equal(t, model.AlertStatusResolved, got.Status)
		assert.Equal(t, model.SeverityHigh, got.Severity)
		require.NotNil(t, got.ResolvedBy)
		assert.Equal(t, actor, *got.ResolvedBy)
		require.Len(t, got.Recipients, 1)
		assert.Equal(t, model.DeliveryResolved, got.Recipients[0].DeliveryStatus)
		assert.Equal(t, a.Context.Key(), got.Context.Key())
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAlertRepository_MarkDispatched(t *testing.T) {
	mock, base := setupMockDB(t)
	repo := NewAlertRepository(base)
	id := uuid.New()

	mock.ExpectExec(`UPDATE alert_recipients\s+SET delivery_status = 'dispatched'\s+WHERE alert_id = \$1 AND delivery_status = 'pending'`).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.MarkDispatched(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
