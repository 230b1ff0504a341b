package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/alert-engine/internal/model"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS alert_types (
		code             TEXT PRIMARY KEY,
		category         TEXT NOT NULL,
		default_severity TEXT NOT NULL,
		description      TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id                UUID PRIMARY KEY,
		patient_id        UUID NOT NULL,
		alert_type        TEXT NOT NULL REFERENCES alert_types(code),
		rule_id           TEXT NOT NULL DEFAULT '',
		severity          TEXT NOT NULL,
		context_kind      TEXT NOT NULL,
		context_ref       TEXT NOT NULL,
		context_key       TEXT NOT NULL,
		window_start      TIMESTAMPTZ,
		window_end        TIMESTAMPTZ,
		note              TEXT NOT NULL DEFAULT '',
		status            TEXT NOT NULL CHECK (status IN ('open', 'resolved')),
		created_by        TEXT NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL,
		detected_at       TIMESTAMPTZ NOT NULL,
		resolved_by       UUID,
		resolved_at       TIMESTAMPTZ,
		recipient_warning BOOLEAN NOT NULL DEFAULT FALSE,
		warning_reason    TEXT NOT NULL DEFAULT ''
	)`,
	// Storage-level guard against duplicate open alerts from concurrent writers.
	`CREATE UNIQUE INDEX IF NOT EXISTS alerts_open_unique
		ON alerts (patient_id, alert_type, context_key) WHERE status = 'open'`,
	`CREATE INDEX IF NOT EXISTS alerts_patient_detected ON alerts (patient_id, detected_at)`,
	`CREATE TABLE IF NOT EXISTS alert_recipients (
		id              UUID PRIMARY KEY,
		alert_id        UUID NOT NULL REFERENCES alerts(id),
		user_id         UUID NOT NULL,
		role            TEXT NOT NULL,
		delivery_status TEXT NOT NULL,
		resolved_at     TIMESTAMPTZ,
		UNIQUE (alert_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS alert_recipients_user ON alert_recipients (user_id)`,
	`CREATE TABLE IF NOT EXISTS change_log (
		id           UUID PRIMARY KEY,
		actor        TEXT NOT NULL,
		entity_type  TEXT NOT NULL,
		entity_id    UUID NOT NULL,
		operation    TEXT NOT NULL,
		before_state JSONB,
		after_state  JSONB,
		created_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS change_log_entity ON change_log (entity_type, entity_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id            UUID PRIMARY KEY,
		event_type    TEXT NOT NULL,
		aggregate_id  UUID NOT NULL,
		payload       JSONB NOT NULL,
		status        TEXT NOT NULL,
		error_message TEXT,
		retry_count   INT NOT NULL DEFAULT 0,
		created_at    TIMESTAMPTZ NOT NULL,
		processed_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_events_status ON outbox_events (status, created_at)`,

	// Clinical read model. Owned by the clinical records service; created here
	// so a local database is usable on its own.
	`CREATE TABLE IF NOT EXISTS patients (
		id         UUID PRIMARY KEY,
		status     TEXT NOT NULL DEFAULT 'active',
		conditions TEXT[] NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS patient_doctors (
		patient_id UUID NOT NULL REFERENCES patients(id),
		doctor_id  UUID NOT NULL,
		PRIMARY KEY (patient_id, doctor_id)
	)`,
	`CREATE TABLE IF NOT EXISTS measurements (
		id         UUID PRIMARY KEY,
		patient_id UUID NOT NULL REFERENCES patients(id),
		value      DOUBLE PRECISION,
		unit       TEXT NOT NULL,
		taken_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS measurements_patient_time ON measurements (patient_id, taken_at)`,
	`CREATE TABLE IF NOT EXISTS schedule_doses (
		schedule_id UUID NOT NULL,
		patient_id  UUID NOT NULL REFERENCES patients(id),
		medication  TEXT NOT NULL,
		due_at      TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (schedule_id, due_at)
	)`,
	`CREATE TABLE IF NOT EXISTS intakes (
		id          UUID PRIMARY KEY,
		patient_id  UUID NOT NULL REFERENCES patients(id),
		schedule_id UUID NOT NULL,
		taken_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS symptoms (
		id          UUID PRIMARY KEY,
		patient_id  UUID NOT NULL REFERENCES patients(id),
		code        TEXT NOT NULL,
		intensity   INT NOT NULL,
		reported_at TIMESTAMPTZ NOT NULL
	)`,
}

// DefaultAlertTypes is the reference data seeded by Migrate.
func DefaultAlertTypes() []model.AlertType {
	return []model.AlertType{
		{Code: "glycemia_high", Category: model.CategoryGlycemicThreshold, DefaultSeverity: model.SeverityHigh, Description: "Glycemia above threshold"},
		{Code: "glycemia_low", Category: model.CategoryGlycemicThreshold, DefaultSeverity: model.SeverityHigh, Description: "Glycemia below threshold"},
		{Code: "missed_dose", Category: model.CategoryMissedDose, DefaultSeverity: model.SeverityMedium, Description: "Scheduled dose not taken"},
		{Code: "symptom_escalation", Category: model.CategorySymptomEscalation, DefaultSeverity: model.SeverityMedium, Description: "Repeated severe symptom reports"},
		{Code: "monitoring_gap", Category: model.CategoryMonitoringGap, DefaultSeverity: model.SeverityLow, Description: "Glycemic monitoring not kept up"},
		{Code: "clinician_concern", Category: model.CategoryManual, DefaultSeverity: model.SeverityMedium, Description: "Raised manually by a clinician"},
	}
}

// Migrate creates the schema and seeds alert types. It is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	base := NewBaseRepository(db)
	return base.WithTx(ctx, func(tx *sqlx.Tx) error {
		for i, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migration statement %d: %w", i, err)
			}
		}
		for _, t := range DefaultAlertTypes() {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO alert_types (code, category, default_severity, description)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (code) DO NOTHING`,
				t.Code, t.Category, t.DefaultSeverity, t.Description)
			if err != nil {
				return fmt.Errorf("seed alert type %s: %w", t.Code, err)
			}
		}
		return nil
	})
}
