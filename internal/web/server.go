package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/emiliopalmerini/mexp/internal/domain"
	"github.com/emiliopalmerini/mexp/internal/feed"
	"github.com/emiliopalmerini/mexp/internal/logging"
)

// ExperimentService is the business layer the handlers call.
type ExperimentService interface {
	List(ctx context.Context) ([]domain.Experiment, error)
	Get(ctx context.Context, id string) (*domain.Experiment, error)
	Add(ctx context.Context, e domain.Experiment) (*domain.Experiment, error)
	Replace(ctx context.Context, id string, e domain.Experiment) (*domain.Experiment, error)
	AppendTimePoints(ctx context.Context, id string, points []domain.TimePoint) (*domain.Experiment, error)
}

// RequestObserver records finished HTTP requests.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, d time.Duration)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the access and error logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithPoller sets the poller backing the event stream.
func WithPoller(p *feed.Poller) Option {
	return func(s *Server) { s.poller = p }
}

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithRequestObserver records every request on o.
func WithRequestObserver(o RequestObserver) Option {
	return func(s *Server) { s.observer = o }
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) { s.shutdownTimeout = d }
}

type Server struct {
	router          *http.ServeMux
	handler         http.Handler
	port            int
	service         ExperimentService
	poller          *feed.Poller
	metricsHandler  http.Handler
	observer        RequestObserver
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

func NewServer(svc ExperimentService, port int, opts ...Option) *Server {
	s := &Server{
		router:          http.NewServeMux(),
		port:            port,
		service:         svc,
		logger:          logging.Nop(),
		shutdownTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.poller == nil {
		s.poller = feed.NewPoller(svc, nil, feed.DefaultInterval, s.logger)
	}
	s.setupRoutes()
	s.handler = s.middleware(s.router)
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.metricsHandler != nil {
		s.router.Handle("GET /metrics", s.metricsHandler)
	}

	s.router.HandleFunc("GET /experiments", s.handleListExperiments)
	s.router.HandleFunc("GET /experiments/stream", s.handleStreamExperiments)
	s.router.HandleFunc("GET /experiments/{id}", s.handleGetExperiment)
	s.router.HandleFunc("POST /experiments", s.handleCreateExperiment)
	s.router.HandleFunc("PUT /experiments/{id}", s.handleReplaceExperiment)
	s.router.HandleFunc("PUT /experiments/{id}/time_points", s.handleAppendTimePoints)
}

func (s *Server) middleware(h http.Handler) http.Handler {
	h = s.recoverPanics(h)
	h = cors(h)
	h = s.observe(h)
	return requestID(h)
}

// ServeHTTP serves a request through the full middleware chain.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Start listens on the configured port until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.logger.Info("starting server", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server shutdown error", "error", err)
		}
	}()

	err := server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
