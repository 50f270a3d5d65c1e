package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/udisondev/aurago/internal/store/migrations"
)

var gooseOnce sync.Once

// CurrentSchemaNumber is the schema version this binary expects in the
// config table. 0 means a fresh, unmigrated database; anything below
// CurrentSchemaNumber but nonzero is an incompatible older layout the bot
// refuses to run against (spec.md §6).
const CurrentSchemaNumber = 3

const schemaNumberKey = "schema_number"

// runMigrations runs goose migrations against an already-open *sql.DB.
func runMigrations(ctx context.Context, sqlDB *sql.DB) error {
	var dialectErr error
	gooseOnce.Do(func() {
		goose.SetBaseFS(migrations.FS)
		dialectErr = goose.SetDialect("sqlite3")
	})
	if dialectErr != nil {
		return fmt.Errorf("store: setting goose dialect: %w", dialectErr)
	}
	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("store: running migrations: %w", err)
	}
	return nil
}

// checkSchema reads the persisted schema_number and enforces spec.md §6's
// gating: an absent row or 0 means uninitialized and is seeded to
// CurrentSchemaNumber here, a nonzero value below CurrentSchemaNumber is a
// fatal incompatibility, and CurrentSchemaNumber or any higher value is
// accepted.
func checkSchema(ctx context.Context, sqlDB *sql.DB) error {
	var raw sql.NullString
	err := sqlDB.QueryRowContext(ctx, `SELECT value FROM config WHERE name = ?`, schemaNumberKey).Scan(&raw)
	switch {
	case err == sql.ErrNoRows || !raw.Valid:
		_, err := sqlDB.ExecContext(ctx,
			`INSERT INTO config (name, value) VALUES (?, ?)`,
			schemaNumberKey, fmt.Sprintf("%d", CurrentSchemaNumber))
		if err != nil {
			return fmt.Errorf("store: seeding schema number: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("store: reading schema number: %w", err)
	}

	var n int
	if _, scanErr := fmt.Sscanf(raw.String, "%d", &n); scanErr != nil {
		return fmt.Errorf("store: parsing schema number %q: %w", raw.String, scanErr)
	}
	if n == 0 {
		_, err := sqlDB.ExecContext(ctx,
			`UPDATE config SET value = ? WHERE name = ?`,
			fmt.Sprintf("%d", CurrentSchemaNumber), schemaNumberKey)
		if err != nil {
			return fmt.Errorf("store: seeding schema number: %w", err)
		}
		return nil
	}
	if n < CurrentSchemaNumber {
		return fmt.Errorf("store: database schema %d is incompatible with required schema %d; delete or migrate the database file", n, CurrentSchemaNumber)
	}
	return nil
}
