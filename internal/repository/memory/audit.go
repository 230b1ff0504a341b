package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/alert-engine/internal/model"
	"github.com/jwalitptl/alert-engine/internal/repository"
)

type AuditRepository struct {
	mu      sync.Mutex
	entries []*model.ChangeLogEntry
	failErr error
}

var _ repository.AuditRepository = (*AuditRepository)(nil)

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

// FailWith makes every Record call return err. A nil err restores normal behaviour.
func (r *AuditRepository) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failErr = err
}

func (r *AuditRepository) Record(_ context.Context, entry *model.ChangeLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	e := *entry
	r.entries = append(r.entries, &e)
	return nil
}

func (r *AuditRepository) ListByEntity(_ context.Context, entityType string, entityID uuid.UUID) ([]*model.ChangeLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.ChangeLogEntry, 0)
	for _, e := range r.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

// Len is the number of recorded entries.
func (r *AuditRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
