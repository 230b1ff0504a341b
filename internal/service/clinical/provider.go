// Package clinical guards calls to the external clinical data provider.
package clinical

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/alert-engine/internal/model"
	"github.com/jwalitptl/alert-engine/internal/repository"
	"github.com/jwalitptl/alert-engine/pkg/circuitbreaker"
	apperrors "github.com/jwalitptl/alert-engine/pkg/errors"
	"github.com/jwalitptl/alert-engine/pkg/logger"
	"github.com/jwalitptl/alert-engine/pkg/metrics"
)

type Config struct {
	// Timeout bounds every single provider call.
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// GuardedProvider wraps a ClinicalDataProvider with a per-call timeout and a
// circuit breaker. Every failure surfaces as a transient provider error.
type GuardedProvider struct {
	next    repository.ClinicalDataProvider
	timeout time.Duration
	breaker *circuitbreaker.CircuitBreaker
	metrics *metrics.Metrics
	log     *logger.Logger
}

var _ repository.ClinicalDataProvider = (*GuardedProvider)(nil)

func NewGuardedProvider(next repository.ClinicalDataProvider, cfg Config, m *metrics.Metrics, log *logger.Logger) *GuardedProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &GuardedProvider{
		next:    next,
		timeout: cfg.Timeout,
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "clinical-provider",
			MaxFailures: cfg.BreakerFailures,
			Timeout:     cfg.BreakerTimeout,
		}),
		metrics: m,
		log:     log.WithComponent("clinical-provider"),
	}
}

// BreakerState reports the circuit breaker state for health checks.
func (p *GuardedProvider) BreakerState() string {
	return p.breaker.State()
}

func guard[T any](ctx context.Context, p *GuardedProvider, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	start := time.Now()

	err := p.breaker.Execute(func() error {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		v, err := fn(callCtx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})

	status := "ok"
	if err != nil {
		status = "error"
		if err == circuitbreaker.ErrOpen {
			status = "rejected"
		}
	}
	p.metrics.ProviderCallLatency.WithLabelValues(op, status).Observe(time.Since(start).Seconds())

	if err != nil {
		p.log.Debug("clinical provider call failed", "operation", op, "error", err.Error())
		var zero T
		return zero, apperrors.TransientProvider(op, err)
	}
	return out, nil
}

func (p *GuardedProvider) GetMeasurements(ctx context.Context, patientID uuid.UUID, window model.TimeWindow) ([]model.Measurement, error) {
	return guard(ctx, p, "get_measurements", func(ctx context.Context) ([]model.Measurement, error) {
		return p.next.GetMeasurements(ctx, patientID, window)
	})
}

func (p *GuardedProvider) GetIntakes(ctx context.Context, patientID uuid.UUID, window model.TimeWindow) ([]model.Intake, error) {
	return guard(ctx, p, "get_intakes", func(ctx context.Context) ([]model.Intake, error) {
		return p.next.GetIntakes(ctx, patientID, window)
	})
}

func (p *GuardedProvider) GetSchedules(ctx context.Context, patientID uuid.UUID, window model.TimeWindow) ([]model.ScheduledDose, error) {
	return guard(ctx, p, "get_schedules", func(ctx context.Context) ([]model.ScheduledDose, error) {
		return p.next.GetSchedules(ctx, patientID, window)
	})
}

func (p *GuardedProvider) GetSymptoms(ctx context.Context, patientID uuid.UUID, window model.TimeWindow) ([]model.Symptom, error) {
	return guard(ctx, p, "get_symptoms", func(ctx context.Context) ([]model.Symptom, error) {
		return p.next.GetSymptoms(ctx, patientID, window)
	})
}

func (p *GuardedProvider) GetAssignedDoctors(ctx context.Context, patientID uuid.UUID) ([]uuid.UUID, error) {
	return guard(ctx, p, "get_assigned_doctors", func(ctx context.Context) ([]uuid.UUID, error) {
		return p.next.GetAssignedDoctors(ctx, patientID)
	})
}
