// Package migrations embeds the goose SQL migration files for internal/store
// (teacher pattern: internal/db/migrate.go embeds a sibling migrations.FS and
// hands it to goose.SetBaseFS).
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
