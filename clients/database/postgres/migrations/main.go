// package migrations registers the go migrations creating and
// evolving the metrics tables
// https://bun.uptrace.dev/guide/migrations.html#go-based-migrations
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
