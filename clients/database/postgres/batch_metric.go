package postgres

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/omercs/odatabatch/clients/database"
)

const (
	BatchMetricsTableName = "batch_metrics"
)

// BatchMetric is the row stored for each batch
type BatchMetric struct {
	bun.BaseModel `bun:"table:batch_metrics,alias:bm"`

	ID                          int64 `bun:",pk,autoincrement"`
	RequestTime                 time.Time
	ResponseLatencyMilliseconds int64
	ItemCount                   int
	ChangeSetCount              int `bun:"changeset_count"`
	CachedItemCount             int
	UpstreamStatusCode          int
	Failed                      bool
	ErrorMessage                *string
	Hostname                    string
	RequestIP                   string `bun:"request_ip"`
	UserAgent                   *string
}

func (bm *BatchMetric) toBatchMetric() *database.BatchMetric {
	return &database.BatchMetric{
		ID:                          bm.ID,
		RequestTime:                 bm.RequestTime,
		ResponseLatencyMilliseconds: bm.ResponseLatencyMilliseconds,
		ItemCount:                   bm.ItemCount,
		ChangeSetCount:              bm.ChangeSetCount,
		CachedItemCount:             bm.CachedItemCount,
		UpstreamStatusCode:          bm.UpstreamStatusCode,
		Failed:                      bm.Failed,
		ErrorMessage:                bm.ErrorMessage,
		Hostname:                    bm.Hostname,
		RequestIP:                   bm.RequestIP,
		UserAgent:                   bm.UserAgent,
	}
}

func convertBatchMetric(metric *database.BatchMetric) *BatchMetric {
	return &BatchMetric{
		ID:                          metric.ID,
		RequestTime:                 metric.RequestTime,
		ResponseLatencyMilliseconds: metric.ResponseLatencyMilliseconds,
		ItemCount:                   metric.ItemCount,
		ChangeSetCount:              metric.ChangeSetCount,
		CachedItemCount:             metric.CachedItemCount,
		UpstreamStatusCode:          metric.UpstreamStatusCode,
		Failed:                      metric.Failed,
		ErrorMessage:                metric.ErrorMessage,
		Hostname:                    metric.Hostname,
		RequestIP:                   metric.RequestIP,
		UserAgent:                   metric.UserAgent,
	}
}

// SaveBatchMetric saves metric to the database, returning error (if any)
func (c *Client) SaveBatchMetric(ctx context.Context, metric *database.BatchMetric) error {
	if c.db == nil {
		return ErrNoDatabase
	}

	bm := convertBatchMetric(metric)
	if _, err := c.db.NewInsert().Model(bm).Returning("id").Exec(ctx); err != nil {
		return err
	}
	metric.ID = bm.ID

	return nil
}

// ListBatchMetricsWithPagination returns a page of max
// `limit` BatchMetrics from the offset specified by `cursor`
// error (if any) along with a cursor to use to fetch the next page
// if the cursor is 0 no more pages exists.
func (c *Client) ListBatchMetricsWithPagination(ctx context.Context, cursor int64, limit int) ([]*database.BatchMetric, int64, error) {
	if c.db == nil {
		return nil, 0, ErrNoDatabase
	}

	var batchMetrics []BatchMetric
	var nextCursor int64

	err := c.db.NewSelect().Model(&batchMetrics).Where("id > ?", cursor).Order("id ASC").Limit(limit).Scan(ctx)
	if err != nil {
		return nil, 0, err
	}

	// look up the id of the last
	if len(batchMetrics) == limit && limit > 0 {
		nextCursor = batchMetrics[len(batchMetrics)-1].ID
	}

	metrics := make([]*database.BatchMetric, 0, len(batchMetrics))
	for i := range batchMetrics {
		metrics = append(metrics, batchMetrics[i].toBatchMetric())
	}

	// otherwise leave nextCursor as 0 to signal no more rows
	return metrics, nextCursor, nil
}

// DeleteBatchMetricsOlderThanNDays deletes all batch metrics
// recorded more than n days ago, returning error (if any).
// Used during pruning process.
func (c *Client) DeleteBatchMetricsOlderThanNDays(ctx context.Context, n int64) error {
	if c.db == nil {
		return ErrNoDatabase
	}

	cutoff := time.Now().AddDate(0, 0, -int(n))
	_, err := c.db.NewDelete().Model((*BatchMetric)(nil)).Where("request_time < ?", cutoff).Exec(ctx)

	return err
}
