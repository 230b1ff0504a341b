package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/alert-engine/internal/model"
	"github.com/jwalitptl/alert-engine/internal/repository"
	apperrors "github.com/jwalitptl/alert-engine/pkg/errors"
)

const alertColumns = `a.id, a.patient_id, a.alert_type, a.rule_id, a.severity, a.context_kind, a.context_ref,
	a.window_start, a.window_end, a.note, a.status, a.created_by, a.created_at, a.detected_at, a.resolved_by, a.resolved_at,
	a.recipient_warning, a.warning_reason`

type alertRow struct {
	ID               uuid.UUID         `db:"id"`
	PatientID        uuid.UUID         `db:"patient_id"`
	AlertType        string            `db:"alert_type"`
	RuleID           string            `db:"rule_id"`
	Severity         model.Severity    `db:"severity"`
	ContextKind      model.ContextKind `db:"context_kind"`
	ContextRef       string            `db:"context_ref"`
	WindowStart      sql.NullTime      `db:"window_start"`
	WindowEnd        sql.NullTime      `db:"window_end"`
	Note             string            `db:"note"`
	Status           model.AlertStatus `db:"status"`
	CreatedBy        string            `db:"created_by"`
	CreatedAt        time.Time         `db:"created_at"`
	DetectedAt       time.Time         `db:"detected_at"`
	ResolvedBy       *uuid.UUID        `db:"resolved_by"`
	ResolvedAt       *time.Time        `db:"resolved_at"`
	RecipientWarning bool              `db:"recipient_warning"`
	WarningReason    string            `db:"warning_reason"`
}

func (r alertRow) toModel() *model.Alert {
	return &model.Alert{
		ID:        r.ID,
		PatientID: r.PatientID,
		AlertType: r.AlertType,
		RuleID:    r.RuleID,
		Severity:  r.Severity,
		Context: model.TriggerContext{
			Kind:        r.ContextKind,
			Ref:         r.ContextRef,
			WindowStart: r.WindowStart.Time,
			WindowEnd:   r.WindowEnd.Time,
		},
		Note:             r.Note,
		Status:           r.Status,
		CreatedBy:        r.CreatedBy,
		CreatedAt:        r.CreatedAt,
		DetectedAt:       r.DetectedAt,
		ResolvedBy:       r.ResolvedBy,
		ResolvedAt:       r.ResolvedAt,
		RecipientWarning: r.RecipientWarning,
		WarningReason:    r.WarningReason,
		Recipients:       []model.AlertRecipient{},
	}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

type alertRepository struct {
	BaseRepository
}

func NewAlertRepository(base BaseRepository) repository.AlertRepository {
	return &alertRepository{base}
}

func (r *alertRepository) Create(ctx context.Context, alert *model.Alert) error {
	if alert == nil {
		return fmt.Errorf("alert cannot be nil")
	}

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO alerts (
				id, patient_id, alert_type, rule_id, severity, context_kind, context_ref, context_key,
				window_start, window_end, note, status, created_by, created_at, detected_at, recipient_warning, warning_reason
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
			alert.ID,
			alert.PatientID,
			alert.AlertType,
			alert.RuleID,
			alert.Severity,
			alert.Context.Kind,
			alert.Context.Ref,
			alert.Context.Key(),
			nullTime(alert.Context.WindowStart),
			nullTime(alert.Context.WindowEnd),
			alert.Note,
			alert.Status,
			alert.CreatedBy,
			alert.CreatedAt,
			alert.FiredAt(),
			alert.RecipientWarning,
			alert.WarningReason,
		)
		if err != nil {
			return err
		}

		for _, rec := range alert.Recipients {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO alert_recipients (id, alert_id, user_id, role, delivery_status, resolved_at)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				rec.ID, rec.AlertID, rec.UserID, rec.Role, rec.DeliveryStatus, rec.ResolvedAt,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if isUniqueViolation(err) {
		return apperrors.Conflict("an open alert already exists for this patient, type and context", err)
	}
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

func (r *alertRepository) Get(ctx context.Context, id uuid.UUID) (*model.Alert, error) {
	return r.getOne(ctx, `SELECT `+alertColumns+` FROM alerts a WHERE a.id = $1`, id)
}

func (r *alertRepository) GetByRecipient(ctx context.Context, recipientID uuid.UUID) (*model.Alert, error) {
	return r.getOne(ctx, `
		SELECT `+alertColumns+`
		FROM alerts a
		JOIN alert_recipients ar ON ar.alert_id = a.id
		WHERE ar.id = $1`, recipientID)
}

func (r *alertRepository) getOne(ctx context.Context, query string, arg interface{}) (*model.Alert, error) {
	var row alertRow
	if err := r.db.GetContext(ctx, &row, query, arg); err != nil {
		return nil, notFoundIfNoRows("alert", err)
	}
	alerts, err := r.withRecipients(ctx, []alertRow{row})
	if err != nil {
		return nil, err
	}
	return alerts[0], nil
}

func (r *alertRepository) ListOpenByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Alert, error) {
	return r.list(ctx, `
		SELECT `+alertColumns+`
		FROM alerts a
		WHERE a.patient_id = $1 AND a.status = 'open'
		ORDER BY a.created_at DESC`, patientID)
}

func (r *alertRepository) ListByPatientSince(ctx context.Context, patientID uuid.UUID, since time.Time) ([]*model.Alert, error) {
	return r.list(ctx, `
		SELECT `+alertColumns+`
		FROM alerts a
		WHERE a.patient_id = $1 AND a.detected_at >= $2
		ORDER BY a.detected_at DESC`, patientID, since)
}

func (r *alertRepository) ListByRecipientUser(ctx context.Context, userID uuid.UUID, openOnly bool) ([]*model.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts a
		JOIN alert_recipients ar ON ar.alert_id = a.id
		WHERE ar.user_id = $1`
	if openOnly {
		query += ` AND a.status = 'open'`
	}
	query += ` ORDER BY a.created_at DESC`
	return r.list(ctx, query, userID)
}

func (r *alertRepository) list(ctx context.Context, query string, args ...interface{}) ([]*model.Alert, error) {
	var rows []alertRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return r.withRecipients(ctx, rows)
}

func (r *alertRepository) withRecipients(ctx context.Context, rows []alertRow) ([]*model.Alert, error) {
	alerts := make([]*model.Alert, 0, len(rows))
	if len(rows) == 0 {
		return alerts, nil
	}

	byID := make(map[uuid.UUID]*model.Alert, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		a := row.toModel()
		alerts = append(alerts, a)
		byID[a.ID] = a
		ids = append(ids, a.ID.String())
	}

	var recipients []model.AlertRecipient
	err := r.db.SelectContext(ctx, &recipients, `
		SELECT id, alert_id, user_id, role, delivery_status, resolved_at
		FROM alert_recipients
		WHERE alert_id = ANY($1::uuid[])
		ORDER BY role DESC, user_id`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load alert recipients: %w", err)
	}
	for _, rec := range recipients {
		if a, ok := byID[rec.AlertID]; ok {
			a.Recipients = append(a.Recipients, rec)
		}
	}
	return alerts, nil
}

// Resolve relies on the conditional update: of two concurrent callers only
// one sees a row affected.
func (r *alertRepository) Resolve(ctx context.Context, alertID, actorID uuid.UUID, at time.Time) (*model.Alert, error) {
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE alerts
			SET status = 'resolved', resolved_by = $2, resolved_at = $3
			WHERE id = $1 AND status = 'open'`,
			alertID, actorID, at)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var status model.AlertStatus
			err := tx.GetContext(ctx, &status, `SELECT status FROM alerts WHERE id = $1`, alertID)
			if err != nil {
				return notFoundIfNoRows("alert", err)
			}
			return apperrors.Conflict("alert is already resolved", nil)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE alert_recipients
			SET delivery_status = 'resolved', resolved_at = $2
			WHERE alert_id = $1`,
			alertID, at)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, alertID)
}

func (r *alertRepository) MarkDispatched(ctx context.Context, alertID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE alert_recipients
		SET delivery_status = 'dispatched'
		WHERE alert_id = $1 AND delivery_status = 'pending'`, alertID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark recipients dispatched: %w", err)
	}
	return res.RowsAffected()
}
