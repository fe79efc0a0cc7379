package ports

import (
	"context"
	"time"
)

// Operation outcomes reported to a MetricsExporter.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

// MetricsExporter exports experiment service metrics to an observability system.
type MetricsExporter interface {
	// RecordOperation records one completed service operation.
	RecordOperation(ctx context.Context, m OperationMetrics)
	// Close shuts down the exporter and flushes any pending metrics.
	Close(ctx context.Context) error
}

// OperationMetrics describes a single service call.
type OperationMetrics struct {
	Operation    string
	Outcome      string
	Duration     time.Duration
	ExperimentID string
	TimePoints   int
}
