package noop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omercs/odatabatch/clients/database"
)

func TestUnitTestNoopDatabase(t *testing.T) {
	ctx := context.Background()
	db := New()

	require.NoError(t, db.SaveBatchMetric(ctx, &database.BatchMetric{ItemCount: 3}))

	metrics, cursor, err := db.ListBatchMetricsWithPagination(ctx, 0, 10)
	require.NoError(t, err)
	require.Empty(t, metrics)
	require.Zero(t, cursor)

	require.NoError(t, db.DeleteBatchMetricsOlderThanNDays(ctx, 1))
	require.NoError(t, db.HealthCheck(ctx))
}
