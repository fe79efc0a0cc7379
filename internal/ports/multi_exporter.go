package ports

import (
	"context"
	"errors"
)

// MultiExporter fans metrics out to several exporters.
type MultiExporter []MetricsExporter

func (m MultiExporter) RecordOperation(ctx context.Context, om OperationMetrics) {
	for _, e := range m {
		e.RecordOperation(ctx, om)
	}
}

func (m MultiExporter) Close(ctx context.Context) error {
	var errs []error
	for _, e := range m {
		if err := e.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
