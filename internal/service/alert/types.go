package alert

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/alert-engine/internal/model"
	"github.com/jwalitptl/alert-engine/internal/repository"
)

// TypeLookup caches alert types. Alert types are immutable reference data;
// alert state is never cached.
type TypeLookup struct {
	repo  repository.AlertTypeRepository
	cache *cache.Cache
}

func NewTypeLookup(repo repository.AlertTypeRepository, ttl time.Duration) *TypeLookup {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TypeLookup{
		repo:  repo,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Get returns the alert type for code, or a not-found error.
func (l *TypeLookup) Get(ctx context.Context, code string) (*model.AlertType, error) {
	if v, found := l.cache.Get(code); found {
		t := v.(model.AlertType)
		return &t, nil
	}

	t, err := l.repo.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	l.cache.Set(code, *t, cache.DefaultExpiration)
	return t, nil
}

func (l *TypeLookup) List(ctx context.Context) ([]model.AlertType, error) {
	types, err := l.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range types {
		l.cache.Set(t.Code, t, cache.DefaultExpiration)
	}
	return types, nil
}
