// package database provides the storage of batch metrics
// recorded by the batch gateway
package database

import "context"

// MetricsDatabase stores one BatchMetric per batch handled by the gateway
type MetricsDatabase interface {
	SaveBatchMetric(ctx context.Context, metric *BatchMetric) error
	ListBatchMetricsWithPagination(ctx context.Context, cursor int64, limit int) ([]*BatchMetric, int64, error)
	DeleteBatchMetricsOlderThanNDays(ctx context.Context, n int64) error
	HealthCheck(ctx context.Context) error
}
