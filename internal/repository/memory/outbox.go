package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/alert-engine/internal/model"
	"github.com/jwalitptl/alert-engine/internal/repository"
)

type OutboxRepository struct {
	mu     sync.Mutex
	events map[uuid.UUID]*model.OutboxEvent
	now    func() time.Time
}

var _ repository.OutboxRepository = (*OutboxRepository)(nil)

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{
		events: make(map[uuid.UUID]*model.OutboxEvent),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *OutboxRepository) Create(_ context.Context, event *model.OutboxEvent) error {
	if event == nil || event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.now()
	}
	event.Status = model.OutboxStatusPending
	e := *event
	r.events[e.ID] = &e
	return nil
}

func (r *OutboxRepository) GetPendingEvents(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*model.OutboxEvent, 0)
	for _, e := range r.events {
		if e.Status == model.OutboxStatusPending || e.Status == model.OutboxStatusFailed {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *OutboxRepository) MarkProcessed(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return fmt.Errorf("outbox event %s not found", id)
	}
	now := r.now()
	e.Status = model.OutboxStatusProcessed
	e.ErrorMessage = nil
	e.ProcessedAt = &now
	return nil
}

func (r *OutboxRepository) MarkFailed(_ context.Context, id uuid.UUID, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return fmt.Errorf("outbox event %s not found", id)
	}
	msg := errorMessage
	e.Status = model.OutboxStatusFailed
	e.ErrorMessage = &msg
	e.RetryCount++
	return nil
}

func (r *OutboxRepository) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, e := range r.events {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			delete(r.events, id)
			n++
		}
	}
	return n, nil
}

// Events returns a copy of every stored event, oldest first.
func (r *OutboxRepository) Events() []model.OutboxEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.OutboxEvent, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
