package clinical

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/alert-engine/internal/model"
	"github.com/jwalitptl/alert-engine/internal/repository/memory"
	"github.com/jwalitptl/alert-engine/pkg/circuitbreaker"
	apperrors "github.com/jwalitptl/alert-engine/pkg/errors"
	"github.com/jwalitptl/alert-engine/pkg/logger"
	"github.com/jwalitptl/alert-engine/pkg/metrics"
)

func newGuarded(store *memory.ClinicalStore, cfg Config) *GuardedProvider {
	return NewGuardedProvider(store, cfg, metrics.NewTestMetrics(), logger.Nop())
}

func TestGuardedProviderPassesThrough(t *testing.T) {
	store := memory.NewClinicalStore()
	patient := uuid.New()
	v := 120.0
	at := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	store.AddMeasurements(model.Measurement{PatientID: patient, Value: &v, Unit: model.UnitMgDL, TakenAt: at})

	p := newGuarded(store, Config{Timeout: time.Second})
	got, err := p.GetMeasurements(context.Background(), patient, model.WindowEndingAt(at.Add(time.Hour), 24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 1)

	doctors, err := p.GetAssignedDoctors(context.Background(), patient)
	require.NoError(t, err)
	assert.NotNil(t, doctors)
	assert.Empty(t, doctors)
}

func TestGuardedProviderTimeoutIsTransient(t *testing.T) {
	store := memory.NewClinicalStore()
	store.SetDelay(time.Second)

	p := newGuarded(store, Config{Timeout: 20 * time.Millisecond})
	start := time.Now()
	_, err := p.GetSymptoms(context.Background(), uuid.New(), model.WindowEndingAt(time.Now(), time.Hour))

	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrTransientProvider))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestGuardedProviderBreakerOpens(t *testing.T) {
	store := memory.NewClinicalStore()
	store.FailOn(uuid.Nil, memory.OpIntakes, errors.New("connection refused"))

	p := newGuarded(store, Config{Timeout: time.Second, BreakerFailures: 2, BreakerTimeout: time.Minute})
	ctx := context.Background()
	w := model.WindowEndingAt(time.Now(), time.Hour)

	for i := 0; i < 2; i++ {
		_, err := p.GetIntakes(ctx, uuid.New(), w)
		require.Error(t, err)
	}
	assert.Equal(t, "open", p.BreakerState())

	_, err := p.GetIntakes(ctx, uuid.New(), w)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrTransientProvider))
	assert.True(t, errors.Is(err, circuitbreaker.ErrOpen))
	assert.Equal(t, int64(2), store.Calls(memory.OpIntakes))
}
