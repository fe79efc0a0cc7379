package service

import (
	"context"
	"sync"

	"github.com/emiliopalmerini/mexp/internal/domain"
	"github.com/emiliopalmerini/mexp/internal/ports"
)

// MockRepository is a mock implementation of ports.ExperimentRepository for testing.
type MockRepository struct {
	FindAllFunc  func(ctx context.Context) ([]domain.Experiment, error)
	FindByIDFunc func(ctx context.Context, id string) (*domain.Experiment, error)
	InsertFunc   func(ctx context.Context, e domain.Experiment) (*domain.Experiment, error)
	SaveFunc     func(ctx context.Context, e domain.Experiment) (*domain.Experiment, error)

	mu          sync.Mutex
	InsertCalls int
	SaveCalls   int
}

var _ ports.ExperimentRepository = (*MockRepository)(nil)

func (m *MockRepository) FindAll(ctx context.Context) ([]domain.Experiment, error) {
	if m.FindAllFunc != nil {
		return m.FindAllFunc(ctx)
	}
	return []domain.Experiment{}, nil
}

func (m *MockRepository) FindByID(ctx context.Context, id string) (*domain.Experiment, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockRepository) Insert(ctx context.Context, e domain.Experiment) (*domain.Experiment, error) {
	m.mu.Lock()
	m.InsertCalls++
	m.mu.Unlock()
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, e)
	}
	e.ID = "generated"
	return &e, nil
}

func (m *MockRepository) Save(ctx context.Context, e domain.Experiment) (*domain.Experiment, error) {
	m.mu.Lock()
	m.SaveCalls++
	m.mu.Unlock()
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, e)
	}
	return &e, nil
}

// recordingMetrics captures operations for assertions.
type recordingMetrics struct {
	mu  sync.Mutex
	ops []ports.OperationMetrics
}

func (r *recordingMetrics) RecordOperation(_ context.Context, m ports.OperationMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, m)
}

func (r *recordingMetrics) Close(context.Context) error { return nil }

type countingNotifier struct {
	mu    sync.Mutex
	count int
}

func (c *countingNotifier) Notify() {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}
