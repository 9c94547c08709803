package noop

import (
	"context"

	"github.com/omercs/odatabatch/clients/database"
)

// Noop is a database client that does nothing
type Noop struct{}

var _ database.MetricsDatabase = (*Noop)(nil)

func New() *Noop {
	return &Noop{}
}

func (e *Noop) SaveBatchMetric(ctx context.Context, metric *database.BatchMetric) error {
	return nil
}

func (e *Noop) ListBatchMetricsWithPagination(ctx context.Context, cursor int64, limit int) ([]*database.BatchMetric, int64, error) {
	return []*database.BatchMetric{}, 0, nil
}

func (e *Noop) DeleteBatchMetricsOlderThanNDays(ctx context.Context, n int64) error {
	return nil
}

func (e *Noop) HealthCheck(ctx context.Context) error {
	return nil
}
