package ports

import (
	"context"

	"github.com/emiliopalmerini/mexp/internal/domain"
)

// ExperimentRepository is the record store for experiments.
//
// FindByID returns (nil, nil) when no record matches. Insert assigns a fresh
// id and ignores any id already on the experiment. Save is an upsert and
// requires an id.
type ExperimentRepository interface {
	FindAll(ctx context.Context) ([]domain.Experiment, error)
	FindByID(ctx context.Context, id string) (*domain.Experiment, error)
	Insert(ctx context.Context, experiment domain.Experiment) (*domain.Experiment, error)
	Save(ctx context.Context, experiment domain.Experiment) (*domain.Experiment, error)
}
