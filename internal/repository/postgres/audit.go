package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/alert-engine/internal/model"
	"github.com/jwalitptl/alert-engine/internal/repository"
)

type auditRepository struct {
	BaseRepository
}

func NewAuditRepository(base BaseRepository) repository.AuditRepository {
	return &auditRepository{base}
}

func (r *auditRepository) Record(ctx context.Context, entry *model.ChangeLogEntry) error {
	query := `
        INSERT INTO change_log (
            id, actor, entity_type, entity_id, operation, before_state, after_state, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.Actor,
		entry.EntityType,
		entry.EntityID,
		entry.Operation,
		nullableJSON(entry.Before),
		nullableJSON(entry.After),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record change log entry: %w", err)
	}
	return nil
}

func (r *auditRepository) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.ChangeLogEntry, error) {
	query := `
        SELECT id, actor, entity_type, entity_id, operation, before_state, after_state, created_at
        FROM change_log
        WHERE entity_type = $1 AND entity_id = $2
        ORDER BY created_at
    `

	var rows []changeLogRow
	if err := r.db.SelectContext(ctx, &rows, query, entityType, entityID); err != nil {
		return nil, fmt.Errorf("failed to list change log: %w", err)
	}
	entries := make([]*model.ChangeLogEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.toModel())
	}
	return entries, nil
}

// changeLogRow scans the nullable JSONB snapshots as raw bytes.
type changeLogRow struct {
	ID         uuid.UUID `db:"id"`
	Actor      string    `db:"actor"`
	EntityType string    `db:"entity_type"`
	EntityID   uuid.UUID `db:"entity_id"`
	Operation  string    `db:"operation"`
	Before     []byte    `db:"before_state"`
	After      []byte    `db:"after_state"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r changeLogRow) toModel() *model.ChangeLogEntry {
	return &model.ChangeLogEntry{
		ID:         r.ID,
		Actor:      r.Actor,
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		Operation:  r.Operation,
		Before:     r.Before,
		After:      r.After,
		CreatedAt:  r.CreatedAt,
	}
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
