// Package memory provides in-process implementations of the repository
// interfaces. They back the scanner and service tests and the alertctl dry run.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/alert-engine/internal/model"
	"github.com/jwalitptl/alert-engine/internal/repository"
	apperrors "github.com/jwalitptl/alert-engine/pkg/errors"
)

type openKey struct {
	patientID  uuid.UUID
	alertType  string
	contextKey string
}

func keyOf(a *model.Alert) openKey {
	return openKey{a.PatientID, a.AlertType, a.Context.Key()}
}

// AlertRepository keeps alerts in maps and enforces the one-open-alert
// constraint the same way the postgres partial index does.
type AlertRepository struct {
	mu          sync.RWMutex
	alerts      map[uuid.UUID]*model.Alert
	open        map[openKey]uuid.UUID
	byRecipient map[uuid.UUID]uuid.UUID
}

var _ repository.AlertRepository = (*AlertRepository)(nil)

func NewAlertRepository() *AlertRepository {
	return &AlertRepository{
		alerts:      make(map[uuid.UUID]*model.Alert),
		open:        make(map[openKey]uuid.UUID),
		byRecipient: make(map[uuid.UUID]uuid.UUID),
	}
}

func (r *AlertRepository) Create(ctx context.Context, alert *model.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.alerts[alert.ID]; exists {
		return apperrors.Conflict("alert id already exists", nil)
	}
	if alert.Status == model.AlertStatusOpen {
		k := keyOf(alert)
		if _, exists := r.open[k]; exists {
			return apperrors.Conflict("an open alert already exists for this patient, type and context", nil)
		}
		r.open[k] = alert.ID
	}

	stored := alert.Clone()
	r.alerts[stored.ID] = stored
	for _, rec := range stored.Recipients {
		r.byRecipient[rec.ID] = stored.ID
	}
	return nil
}

func (r *AlertRepository) Get(_ context.Context, id uuid.UUID) (*model.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.alerts[id]
	if !ok {
		return nil, apperrors.NotFound("alert", nil)
	}
	return a.Clone(), nil
}

func (r *AlertRepository) GetByRecipient(ctx context.Context, recipientID uuid.UUID) (*model.Alert, error) {
	r.mu.RLock()
	alertID, ok := r.byRecipient[recipientID]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.NotFound("alert recipient", nil)
	}
	return r.Get(ctx, alertID)
}

func (r *AlertRepository) ListOpenByPatient(_ context.Context, patientID uuid.UUID) ([]*model.Alert, error) {
	return r.filter(func(a *model.Alert) bool {
		return a.PatientID == patientID && a.Status == model.AlertStatusOpen
	}), nil
}

func (r *AlertRepository) ListByPatientSince(_ context.Context, patientID uuid.UUID, since time.Time) ([]*model.Alert, error) {
	return r.filter(func(a *model.Alert) bool {
		return a.PatientID == patientID && !a.FiredAt().Before(since)
	}), nil
}

func (r *AlertRepository) ListByRecipientUser(_ context.Context, userID uuid.UUID, openOnly bool) ([]*model.Alert, error) {
	return r.filter(func(a *model.Alert) bool {
		if openOnly && a.Status != model.AlertStatusOpen {
			return false
		}
		for _, rec := range a.Recipients {
			if rec.UserID == userID {
				return true
			}
		}
		return false
	}), nil
}

func (r *AlertRepository) MarkDispatched(_ context.Context, alertID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[alertID]
	if !ok {
		return 0, apperrors.NotFound("alert", nil)
	}
	var n int64
	for i := range a.Recipients {
		if a.Recipients[i].DeliveryStatus == model.DeliveryPending {
			a.Recipients[i].DeliveryStatus = model.DeliveryDispatched
			n++
		}
	}
	return n, nil
}

// filter returns clones of matching alerts, newest first.
func (r *AlertRepository) filter(match func(*model.Alert) bool) []*model.Alert {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Alert, 0)
	for _, a := range r.alerts {
		if match(a) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *AlertRepository) Resolve(_ context.Context, alertID, actorID uuid.UUID, at time.Time) (*model.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[alertID]
	if !ok {
		return nil, apperrors.NotFound("alert", nil)
	}
	if !a.Status.CanTransitionTo(model.AlertStatusResolved) {
		return nil, apperrors.Conflict("alert is already resolved", nil)
	}

	delete(r.open, keyOf(a))
	a.Status = model.AlertStatusResolved
	actor := actorID
	a.ResolvedBy = &actor
	resolvedAt := at
	a.ResolvedAt = &resolvedAt
	for i := range a.Recipients {
		a.Recipients[i].DeliveryStatus = model.DeliveryResolved
		recAt := at
		a.Recipients[i].ResolvedAt = &recAt
	}
	return a.Clone(), nil
}

// Count returns the number of stored alerts.
func (r *AlertRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.alerts)
}

// All returns every stored alert, newest first.
func (r *AlertRepository) All() []*model.Alert {
	return r.filter(func(*model.Alert) bool { return true })
}
