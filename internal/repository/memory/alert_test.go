package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/alert-engine/internal/model"
	apperrors "github.com/jwalitptl/alert-engine/pkg/errors"
)

func openAlert(patientID uuid.UUID, ref string) *model.Alert {
	id := uuid.New()
	return &model.Alert{
		ID:        id,
		PatientID: patientID,
		AlertType: "glycemia_high",
		Severity:  model.SeverityHigh,
		Context:   model.TriggerContext{Kind: model.ContextMeasurement, Ref: ref},
		Status:    model.AlertStatusOpen,
		CreatedBy: model.SystemActor,
		CreatedAt: time.Now().UTC(),
		Recipients: []model.AlertRecipient{
			{ID: uuid.New(), AlertID: id, UserID: patientID, Role: model.RolePatient, DeliveryStatus: model.DeliveryPending},
		},
	}
}

func TestAlertRepositoryRejectsSecondOpenAlert(t *testing.T) {
	repo := NewAlertRepository()
	ctx := context.Background()
	patient := uuid.New()

	require.NoError(t, repo.Create(ctx, openAlert(patient, "m1")))
	err := repo.Create(ctx, openAlert(patient, "m1"))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))

	require.NoError(t, repo.Create(ctx, openAlert(patient, "m2")))
	assert.Equal(t, 2, repo.Count())
}

func TestAlertRepositoryResolveFreesContext(t *testing.T) {
	repo := NewAlertRepository()
	ctx := context.Background()
	patient := uuid.New()
	a := openAlert(patient, "m1")
	require.NoError(t, repo.Create(ctx, a))

	resolved, err := repo.Resolve(ctx, a.ID, uuid.New(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, model.AlertStatusResolved, resolved.Status)
	assert.Equal(t, model.DeliveryResolved, resolved.Recipients[0].DeliveryStatus)

	_, err = repo.Resolve(ctx, a.ID, uuid.New(), time.Now())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))

	_, err = repo.Resolve(ctx, uuid.New(), uuid.New(), time.Now())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))

	require.NoError(t, repo.Create(ctx, openAlert(patient, "m1")))
}

func TestAlertRepositoryConcurrentCreate(t *testing.T) {
	repo := NewAlertRepository()
	patient := uuid.New()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.Create(context.Background(), openAlert(patient, "same")); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
}

func TestAlertRepositoryReturnsCopies(t *testing.T) {
	repo := NewAlertRepository()
	ctx := context.Background()
	a := openAlert(uuid.New(), "m1")
	require.NoError(t, repo.Create(ctx, a))

	got, err := repo.GetByRecipient(ctx, a.Recipients[0].ID)
	require.NoError(t, err)
	got.Severity = model.SeverityLow
	got.Recipients[0].Role = model.RoleDoctor

	again, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SeverityHigh, again.Severity)
	assert.Equal(t, model.RolePatient, again.Recipients[0].Role)
}
