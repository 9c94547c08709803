package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS batch_metrics (
	id BIGSERIAL PRIMARY KEY,
	request_time TIMESTAMPTZ NOT NULL,
	response_latency_milliseconds BIGINT NOT NULL,
	item_count INTEGER NOT NULL,
	changeset_count INTEGER NOT NULL,
	cached_item_count INTEGER NOT NULL,
	upstream_status_code INTEGER NOT NULL,
	failed BOOLEAN NOT NULL,
	error_message TEXT,
	hostname TEXT NOT NULL,
	request_ip TEXT NOT NULL,
	user_agent TEXT
);

CREATE INDEX IF NOT EXISTS batch_metrics_request_time_idx ON batch_metrics (request_time);`)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS batch_metrics;`)
		return err
	})
}
