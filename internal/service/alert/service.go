// Package alert implements the alert engine: evaluation, deduplication,
// recipient resolution, the alert lifecycle and the scan cycle.
package alert

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/alert-engine/internal/model"
	"github.com/jwalitptl/alert-engine/internal/repository"
	"github.com/jwalitptl/alert-engine/internal/service/audit"
	apperrors "github.com/jwalitptl/alert-engine/pkg/errors"
	"github.com/jwalitptl/alert-engine/pkg/logger"
	"github.com/jwalitptl/alert-engine/pkg/metrics"
)

const (
	maxNoteLength = 2000
	// ManualContextRef is the trigger context of a manual alert unless the
	// clinician names one.
	ManualContextRef = "clinician"
)

// ManualAlertRequest is a clinician-entered alert.
type ManualAlertRequest struct {
	PatientID uuid.UUID
	AlertType string
	Severity  model.Severity
	Note      string
	ActorID   uuid.UUID
	// ContextRef optionally ties the alert to a record, e.g. a measurement id.
	ContextRef string
}

type Dependencies struct {
	Alerts    repository.AlertRepository
	Directory repository.PatientDirectory
	Outbox    repository.OutboxRepository
	Types     *TypeLookup
	Resolver  *RecipientResolver
	Audit     *audit.AuditLogger
	Metrics   *metrics.Metrics
	Logger    *logger.Logger
}

// Service is the alert lifecycle manager. It is the only writer of alerts.
type Service struct {
	alerts    repository.AlertRepository
	directory repository.PatientDirectory
	outbox    repository.OutboxRepository
	types     *TypeLookup
	resolver  *RecipientResolver
	audit     *audit.AuditLogger
	metrics   *metrics.Metrics
	log       *logger.Logger
	locks     *keyedMutex
	now       func() time.Time
}

func NewService(deps Dependencies) *Service {
	return &Service{
		alerts:    deps.Alerts,
		directory: deps.Directory,
		outbox:    deps.Outbox,
		types:     deps.Types,
		resolver:  deps.Resolver,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		log:       deps.Logger.WithComponent("alert-service"),
		locks:     newKeyedMutex(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateManualAlert validates the request without side effects, then
// creates the alert through the same path as rule-triggered alerts.
func (s *Service) CreateManualAlert(ctx context.Context, req ManualAlertRequest) (*model.Alert, error) {
	if req.ActorID == uuid.Nil {
		return nil, apperrors.Validation("actor is required")
	}
	if req.PatientID == uuid.Nil {
		return nil, apperrors.Validation("patient id is required")
	}
	if !req.Severity.Valid() {
		return nil, apperrors.Validation("invalid severity")
	}
	if len(req.Note) > maxNoteLength {
		return nil, apperrors.Validation("note exceeds %d characters", maxNoteLength)
	}
	if _, err := s.types.Get(ctx, req.AlertType); err != nil {
		if apperrors.IsCode(err, apperrors.ErrNotFound) {
			return nil, apperrors.Validation("unknown alert type %q", req.AlertType)
		}
		return nil, err
	}

	patient, err := s.directory.GetPatient(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	if patient.Status != model.PatientStatusActive {
		return nil, apperrors.NotFound("patient", nil)
	}

	ref := strings.TrimSpace(req.ContextRef)
	if ref == "" {
		ref = ManualContextRef
	}
	now := s.now()
	candidate := model.CandidateAlert{
		PatientID:  req.PatientID,
		AlertType:  req.AlertType,
		Severity:   req.Severity,
		Context:    model.TriggerContext{Kind: model.ContextManual, Ref: ref},
		DetectedAt: now,
	}

	open, err := s.alerts.ListOpenByPatient(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	kept, suppressed := Filter([]model.CandidateAlert{candidate}, open, nil, now)
	if len(kept) == 0 {
		s.metrics.AlertsSuppressed.WithLabelValues(string(suppressed[0].Reason)).Inc()
		return nil, apperrors.Conflict("an open alert of this type already exists for the patient", nil)
	}

	return s.create(ctx, kept[0], req.ActorID.String(), strings.TrimSpace(req.Note))
}

// CreateFromCandidate persists a rule-triggered alert as the system actor.
// Callers are expected to have filtered the candidate already.
func (s *Service) CreateFromCandidate(ctx context.Context, c model.CandidateAlert) (*model.Alert, error) {
	if !c.Severity.Valid() {
		return nil, apperrors.Validation("invalid severity for rule %q", c.RuleID)
	}
	if c.PatientID == uuid.Nil || c.AlertType == "" {
		return nil, apperrors.Validation("candidate for rule %q is incomplete", c.RuleID)
	}
	return s.create(ctx, c, model.SystemActor, c.Note())
}

func (s *Service) create(ctx context.Context, c model.CandidateAlert, actor, note string) (*model.Alert, error) {
	resolution := s.resolver.Resolve(ctx, c.PatientID, c.Severity)

	now := s.now()
	a := &model.Alert{
		ID:               uuid.New(),
		PatientID:        c.PatientID,
		AlertType:        c.AlertType,
		RuleID:           c.RuleID,
		Severity:         c.Severity,
		Context:          c.Context,
		Note:             note,
		Status:           model.AlertStatusOpen,
		CreatedBy:        actor,
		CreatedAt:        now,
		DetectedAt:       c.DetectedAt,
		RecipientWarning: resolution.Warning != "",
		WarningReason:    resolution.Warning,
	}
	if a.DetectedAt.IsZero() {
		a.DetectedAt = now
	}
	a.Recipients = make([]model.AlertRecipient, 0, len(resolution.Recipients))
	for _, r := range resolution.Recipients {
		a.Recipients = append(a.Recipients, model.AlertRecipient{
			ID:             uuid.New(),
			AlertID:        a.ID,
			UserID:         r.UserID,
			Role:           r.Role,
			DeliveryStatus: model.DeliveryPending,
		})
	}

	if err := s.alerts.Create(ctx, a); err != nil {
		return nil, err
	}

	s.metrics.AlertsCreated.WithLabelValues(a.AlertType, a.Severity.String()).Inc()
	if a.RecipientWarning {
		s.metrics.RecipientWarnings.Inc()
		s.log.Warn("alert created without required doctor",
			"alert_id", a.ID.String(),
			"patient_id", a.PatientID.String(),
			"reason", a.WarningReason,
		)
	}

	s.audit.Log(ctx, audit.Entry{
		Actor:      actor,
		EntityType: model.AuditEntityAlert,
		EntityID:   a.ID,
		Operation:  model.AuditActionCreate,
		After:      a,
	})
	s.enqueue(ctx, model.EventAlertCreated, a, now)

	s.log.Info("alert created",
		"alert_id", a.ID.String(),
		"patient_id", a.PatientID.String(),
		"alert_type", a.AlertType,
		"severity", a.Severity.String(),
		"created_by", actor,
	)
	return a, nil
}

// ResolveAlert resolves the alert behind an alert recipient. Resolving an
// already resolved alert is a conflict; an unknown recipient is not found.
func (s *Service) ResolveAlert(ctx context.Context, recipientID, actorID uuid.UUID) (*model.Alert, error) {
	if actorID == uuid.Nil {
		return nil, apperrors.Validation("actor is required")
	}

	current, err := s.alerts.GetByRecipient(ctx, recipientID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(current.ID)
	defer unlock()

	if !current.Status.CanTransitionTo(model.AlertStatusResolved) {
		return nil, apperrors.Conflict("alert is already resolved", nil)
	}

	now := s.now()
	resolved, err := s.alerts.Resolve(ctx, current.ID, actorID, now)
	if err != nil {
		return nil, err
	}

	s.metrics.AlertsResolved.Inc()
	s.audit.Log(ctx, audit.Entry{
		Actor:      actorID.String(),
		EntityType: model.AuditEntityAlert,
		EntityID:   resolved.ID,
		Operation:  model.AuditActionResolve,
		Before:     current,
		After:      resolved,
	})
	s.enqueue(ctx, model.EventAlertResolved, resolved, now)

	s.log.Info("alert resolved",
		"alert_id", resolved.ID.String(),
		"resolved_by", actorID.String(),
	)
	return resolved, nil
}

// ListOpenAlerts returns open alerts the user receives, newest first.
func (s *Service) ListOpenAlerts(ctx context.Context, userID uuid.UUID) ([]*model.Alert, error) {
	return s.alerts.ListByRecipientUser(ctx, userID, true)
}

// ListAllAlerts returns every alert the user receives, newest first.
func (s *Service) ListAllAlerts(ctx context.Context, userID uuid.UUID) ([]*model.Alert, error) {
	return s.alerts.ListByRecipientUser(ctx, userID, false)
}

func (s *Service) GetAlert(ctx context.Context, id uuid.UUID) (*model.Alert, error) {
	return s.alerts.Get(ctx, id)
}

func (s *Service) AlertTypes(ctx context.Context) ([]model.AlertType, error) {
	return s.types.List(ctx)
}

// enqueue hands the alert to the notification dispatcher through the outbox.
// A failure is logged; the alert itself already exists.
func (s *Service) enqueue(ctx context.Context, eventType string, a *model.Alert, at time.Time) {
	if s.outbox == nil {
		return
	}
	payload, err := json.Marshal(model.NewAlertNotification(a, at))
	if err != nil {
		s.log.Error(err, "failed to encode alert notification", "alert_id", a.ID.String())
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	event := &model.OutboxEvent{
		EventType:   eventType,
		AggregateID: a.ID,
		Payload:     payload,
	}
	if err := s.outbox.Create(ctx, event); err != nil {
		s.log.Error(err, "failed to enqueue alert notification",
			"alert_id", a.ID.String(),
			"event_type", eventType,
		)
	}
}
