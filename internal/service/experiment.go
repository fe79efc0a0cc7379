package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/emiliopalmerini/mexp/internal/domain"
	"github.com/emiliopalmerini/mexp/internal/logging"
	"github.com/emiliopalmerini/mexp/internal/ports"
)

// Notifier is told after every successful write.
type Notifier interface {
	Notify()
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics records every operation on m.
func WithMetrics(m ports.MetricsExporter) Option {
	return func(s *Service) { s.metrics = m }
}

// WithNotifier signals n after each successful Add or Update.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// Service is the experiment business layer. It keeps no per-request state.
//
// AppendTimePoints and Replace read, merge, then write the whole record.
// Two concurrent calls on the same id both read the same base and the later
// Save wins.
type Service struct {
	repo     ports.ExperimentRepository
	logger   *slog.Logger
	now      func() time.Time
	metrics  ports.MetricsExporter
	notifier Notifier
}

// NewService creates a new experiment service.
func NewService(repo ports.ExperimentRepository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: logging.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns every stored experiment, never nil.
func (s *Service) List(ctx context.Context) (experiments []domain.Experiment, err error) {
	defer s.observe(ctx, "list", time.Now(), "", 0, &err)

	experiments, err = s.repo.FindAll(ctx)
	if err != nil {
		s.logger.Error("failed to list experiments", "error", err)
		return nil, err
	}
	if experiments == nil {
		experiments = []domain.Experiment{}
	}
	s.logger.Debug("fetched experiments", "count", len(experiments))
	return experiments, nil
}

// Get returns the experiment with id, or domain.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (e *domain.Experiment, err error) {
	defer s.observe(ctx, "get", time.Now(), id, 0, &err)
	return s.find(ctx, id)
}

// Add validates and inserts a new experiment. Any id on the input is
// ignored; the store assigns one. A zero StartTime defaults to now.
func (s *Service) Add(ctx context.Context, experiment domain.Experiment) (saved *domain.Experiment, err error) {
	defer s.observe(ctx, "add", time.Now(), "", len(experiment.TimePoints), &err)

	if err := domain.ValidateExperiment(experiment); err != nil {
		return nil, err
	}

	e := experiment.Clone()
	e.ID = ""
	if e.StartTime.IsZero() {
		e.StartTime = s.now().Truncate(time.Millisecond)
	}

	saved, err = s.repo.Insert(ctx, e)
	if err != nil {
		s.logger.Error("failed to insert experiment", "name", e.Name, "error", err)
		return nil, fmt.Errorf("insert experiment: %w", err)
	}

	s.logger.Info("inserted experiment", "id", saved.ID, "name", saved.Name)
	s.notify()
	return saved, nil
}

// Update validates and fully replaces the record stored at experiment.ID.
func (s *Service) Update(ctx context.Context, experiment domain.Experiment) (saved *domain.Experiment, err error) {
	defer s.observe(ctx, "update", time.Now(), experiment.ID, len(experiment.TimePoints), &err)
	return s.save(ctx, experiment)
}

// Replace overwrites the editable fields of an existing experiment with
// those of payload and saves it. The stored id is kept, and so is the
// stored start time when payload has none.
func (s *Service) Replace(ctx context.Context, id string, payload domain.Experiment) (saved *domain.Experiment, err error) {
	defer s.observe(ctx, "replace", time.Now(), id, len(payload.TimePoints), &err)

	if err := domain.ValidateExperiment(payload); err != nil {
		return nil, err
	}

	existing, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	start := existing.StartTime
	existing.ReplaceFields(payload)
	if existing.StartTime.IsZero() {
		existing.StartTime = start
	}
	return s.save(ctx, *existing)
}

// AppendTimePoints adds points after the experiment's existing ones.
// Nothing is written when the experiment does not exist.
func (s *Service) AppendTimePoints(ctx context.Context, id string, points []domain.TimePoint) (saved *domain.Experiment, err error) {
	defer s.observe(ctx, "append_time_points", time.Now(), id, len(points), &err)

	if err := domain.ValidateTimePoints(points); err != nil {
		return nil, err
	}

	existing, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	existing.AppendTimePoints(points)
	return s.save(ctx, *existing)
}

func (s *Service) find(ctx context.Context, id string) (*domain.Experiment, error) {
	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		s.logger.Error("failed to get experiment", "id", id, "error", err)
		return nil, fmt.Errorf("get experiment %s: %w", id, err)
	}
	if e == nil {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

func (s *Service) save(ctx context.Context, experiment domain.Experiment) (*domain.Experiment, error) {
	if experiment.ID == "" {
		return nil, domain.ErrMissingID
	}
	if err := domain.ValidateExperiment(experiment); err != nil {
		return nil, err
	}

	saved, err := s.repo.Save(ctx, experiment)
	if err != nil {
		s.logger.Error("failed to update experiment", "id", experiment.ID, "error", err)
		return nil, fmt.Errorf("update experiment %s: %w", experiment.ID, err)
	}

	s.logger.Info("updated experiment", "id", saved.ID, "time_points", len(saved.TimePoints))
	s.notify()
	return saved, nil
}

func (s *Service) notify() {
	if s.notifier != nil {
		s.notifier.Notify()
	}
}

func (s *Service) observe(ctx context.Context, op string, start time.Time, id string, points int, errp *error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordOperation(ctx, ports.OperationMetrics{
		Operation:    op,
		Outcome:      outcome(*errp),
		Duration:     time.Since(start),
		ExperimentID: id,
		TimePoints:   points,
	})
}

func outcome(err error) string {
	var verr *domain.ValidationError
	switch {
	case err == nil:
		return ports.OutcomeOK
	case errors.Is(err, domain.ErrNotFound):
		return ports.OutcomeNotFound
	case errors.As(err, &verr), errors.Is(err, domain.ErrMissingID):
		return ports.OutcomeInvalid
	default:
		return ports.OutcomeError
	}
}
