package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/alert-engine/internal/model"
	"github.com/jwalitptl/alert-engine/internal/repository"
)

type Service struct {
	repo repository.AuditRepository
	now  func() time.Time
}

func NewService(repo repository.AuditRepository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// Entry describes one state transition to record.
type Entry struct {
	Actor      string
	EntityType string
	EntityID   uuid.UUID
	Operation  string
	Before     interface{}
	After      interface{}
}

// Record snapshots before and after as JSON and writes one change log entry.
func (s *Service) Record(ctx context.Context, e Entry) error {
	before, err := snapshot(e.Before)
	if err != nil {
		return fmt.Errorf("failed to snapshot before state: %w", err)
	}
	after, err := snapshot(e.After)
	if err != nil {
		return fmt.Errorf("failed to snapshot after state: %w", err)
	}

	entry := &model.ChangeLogEntry{
		ID:         uuid.New(),
		Actor:      e.Actor,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Operation:  e.Operation,
		Before:     before,
		After:      after,
		CreatedAt:  s.now(),
	}
	return s.repo.Record(ctx, entry)
}

func (s *Service) History(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.ChangeLogEntry, error) {
	return s.repo.ListByEntity(ctx, entityType, entityID)
}

func snapshot(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
