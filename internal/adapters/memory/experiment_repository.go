// Package memory provides an in-process experiment store. Records live only
// as long as the repository value.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/emiliopalmerini/mexp/internal/domain"
)

type ExperimentRepository struct {
	mu    sync.RWMutex
	byID  map[string]domain.Experiment
	order []string
	newID func() string
}

func NewExperimentRepository() *ExperimentRepository {
	return &ExperimentRepository{
		byID:  make(map[string]domain.Experiment),
		newID: uuid.NewString,
	}
}

// FindAll returns experiments in insertion order.
func (r *ExperimentRepository) FindAll(ctx context.Context) ([]domain.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	experiments := make([]domain.Experiment, 0, len(r.order))
	for _, id := range r.order {
		experiments = append(experiments, r.byID[id].Clone())
	}
	return experiments, nil
}

func (r *ExperimentRepository) FindByID(ctx context.Context, id string) (*domain.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	c := e.Clone()
	return &c, nil
}

func (r *ExperimentRepository) Insert(ctx context.Context, experiment domain.Experiment) (*domain.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	e := experiment.Clone()
	e.ID = r.newID()
	if _, exists := r.byID[e.ID]; exists {
		return nil, fmt.Errorf("failed to insert experiment: duplicate id %s", e.ID)
	}
	r.put(e)

	out := e.Clone()
	return &out, nil
}

func (r *ExperimentRepository) Save(ctx context.Context, experiment domain.Experiment) (*domain.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if experiment.ID == "" {
		return nil, domain.ErrMissingID
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	e := experiment.Clone()
	r.put(e)

	out := e.Clone()
	return &out, nil
}

func (r *ExperimentRepository) put(e domain.Experiment) {
	if _, exists := r.byID[e.ID]; !exists {
		r.order = append(r.order, e.ID)
	}
	r.byID[e.ID] = e
}
