package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/alert-engine/internal/model"
)

// All repository interfaces in one file
type (
	// AlertRepository persists alerts and their recipients. Implementations
	// must enforce at most one open alert per (patient, alert type, context key)
	// at the storage layer and report a violation as a conflict error.
	AlertRepository interface {
		Create(ctx context.Context, alert *model.Alert) error
		Get(ctx context.Context, id uuid.UUID) (*model.Alert, error)
		GetByRecipient(ctx context.Context, recipientID uuid.UUID) (*model.Alert, error)
		ListOpenByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Alert, error)
		// ListByPatientSince returns open and resolved alerts created at or after since.
		ListByPatientSince(ctx context.Context, patientID uuid.UUID, since time.Time) ([]*model.Alert, error)
		// ListByRecipientUser returns alerts the user receives, newest first.
		ListByRecipientUser(ctx context.Context, userID uuid.UUID, openOnly bool) ([]*model.Alert, error)
		// Resolve moves an open alert and all its recipients to resolved. It
		// returns a not-found error for an unknown alert and a conflict error
		// when the alert is already resolved.
		Resolve(ctx context.Context, alertID, actorID uuid.UUID, at time.Time) (*model.Alert, error)
		// MarkDispatched moves the alert's pending recipients to dispatched
		// and returns how many changed. Resolved recipients are left alone.
		MarkDispatched(ctx context.Context, alertID uuid.UUID) (int64, error)
	}

	AlertTypeRepository interface {
		List(ctx context.Context) ([]model.AlertType, error)
		Get(ctx context.Context, code string) (*model.AlertType, error)
	}

	// ClinicalDataProvider is read-only access to the clinical record. Every
	// method returns an empty slice, never nil, when there is no data.
	ClinicalDataProvider interface {
		GetMeasurements(ctx context.Context, patientID uuid.UUID, window model.TimeWindow) ([]model.Measurement, error)
		GetIntakes(ctx context.Context, patientID uuid.UUID, window model.TimeWindow) ([]model.Intake, error)
		GetSchedules(ctx context.Context, patientID uuid.UUID, window model.TimeWindow) ([]model.ScheduledDose, error)
		GetSymptoms(ctx context.Context, patientID uuid.UUID, window model.TimeWindow) ([]model.Symptom, error)
		GetAssignedDoctors(ctx context.Context, patientID uuid.UUID) ([]uuid.UUID, error)
	}

	PatientDirectory interface {
		ListActivePatients(ctx context.Context) ([]model.Patient, error)
		// GetPatient returns a not-found error for unknown patients.
		GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error)
	}

	AuditRepository interface {
		Record(ctx context.Context, entry *model.ChangeLogEntry) error
		ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.ChangeLogEntry, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
