package postgres

import (
	"context"
	"fmt"

	"github.com/jwalitptl/alert-engine/internal/model"
	"github.com/jwalitptl/alert-engine/internal/repository"
)

type alertTypeRepository struct {
	BaseRepository
}

func NewAlertTypeRepository(base BaseRepository) repository.AlertTypeRepository {
	return &alertTypeRepository{base}
}

func (r *alertTypeRepository) List(ctx context.Context) ([]model.AlertType, error) {
	var types []model.AlertType
	err := r.db.SelectContext(ctx, &types, `
		SELECT code, category, default_severity, description
		FROM alert_types
		ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert types: %w", err)
	}
	return emptyIfNil(types), nil
}

func (r *alertTypeRepository) Get(ctx context.Context, code string) (*model.AlertType, error) {
	var t model.AlertType
	err := r.db.GetContext(ctx, &t, `
		SELECT code, category, default_severity, description
		FROM alert_types
		WHERE code = $1`, code)
	if err != nil {
		return nil, notFoundIfNoRows("alert type", err)
	}
	return &t, nil
}
