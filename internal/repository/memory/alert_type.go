package memory

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/jwalitptl/alert-engine/internal/model"
	"github.com/jwalitptl/alert-engine/internal/repository"
	apperrors "github.com/jwalitptl/alert-engine/pkg/errors"
)

type AlertTypeRepository struct {
	types map[string]model.AlertType
	calls atomic.Int64
}

var _ repository.AlertTypeRepository = (*AlertTypeRepository)(nil)

func NewAlertTypeRepository(types []model.AlertType) *AlertTypeRepository {
	m := make(map[string]model.AlertType, len(types))
	for _, t := range types {
		m[t.Code] = t
	}
	return &AlertTypeRepository{types: m}
}

func (r *AlertTypeRepository) List(_ context.Context) ([]model.AlertType, error) {
	r.calls.Add(1)
	out := make([]model.AlertType, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *AlertTypeRepository) Get(_ context.Context, code string) (*model.AlertType, error) {
	r.calls.Add(1)
	t, ok := r.types[code]
	if !ok {
		return nil, apperrors.NotFound("alert type", nil)
	}
	return &t, nil
}

// Calls is the number of lookups served.
func (r *AlertTypeRepository) Calls() int64 {
	return r.calls.Load()
}
