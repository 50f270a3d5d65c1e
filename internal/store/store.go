// Package store persists bans, aliases, geo-IP ranges, moderators, and
// per-game history rows across restarts, and holds the schema-number gate
// spec.md §6 requires (teacher pattern: internal/db, retargeted from
// PostgreSQL/pgx onto a pure-Go SQLite driver since this module is never
// built with cgo available).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BanRecord is one row of the bans table.
type BanRecord struct {
	Name      string
	Server    string
	IP        string
	Moderator string
	Reason    string
	BannedAt  time.Time
}

// Alias maps a short map-name alias to its on-disk path (spec.md §5:
// alias resolution for map identifiers).
type Alias struct {
	Alias   string
	MapPath string
}

// GeoIPRange is one row of an imported IP-to-country table.
type GeoIPRange struct {
	From    uint32
	To      uint32
	Country string
}

// GameHistoryRow is one completed game's summary, recorded on game-over
// (spec.md §5).
type GameHistoryRow struct {
	ID         string
	Name       string
	MapPath    string
	Owner      string
	Server     string
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Players    []string
}

// ModeratorRecord is one row of the moderators table.
type ModeratorRecord struct {
	Name     string
	Server   string
	AddedAt  time.Time
}

// Store is the out-of-scope persistence collaborator (spec.md §7): bans,
// aliases, geo-IP, game history, moderators, and arbitrary config values.
type Store interface {
	IsBanned(ctx context.Context, name, server string) (*BanRecord, error)
	AddBan(ctx context.Context, rec BanRecord) error
	RemoveBan(ctx context.Context, name, server string) error

	ResolveAlias(ctx context.Context, alias string) (string, bool, error)
	SetAlias(ctx context.Context, alias, mapPath string) error

	LookupCountry(ctx context.Context, ip uint32) (string, bool, error)
	ImportGeoIP(ctx context.Context, ranges []GeoIPRange) error

	RecordGame(ctx context.Context, row GameHistoryRow) error

	IsModerator(ctx context.Context, name, server string) (bool, error)
	AddModerator(ctx context.Context, rec ModeratorRecord) error

	GetConfig(ctx context.Context, key string) (string, bool, error)
	SetConfig(ctx context.Context, key, value string) error

	Close() error
}

type sqliteStore struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path, runs
// pending goose migrations, and enforces the schema-number gate.
func Open(ctx context.Context, path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite has no internal connection pool locking

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := checkSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) IsBanned(ctx context.Context, name, server string) (*BanRecord, error) {
	var rec BanRecord
	var bannedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT name, server, ip, moderator, reason, banned_at FROM bans WHERE name = ? AND server = ?`,
		strings.ToLower(name), server,
	).Scan(&rec.Name, &rec.Server, &rec.IP, &rec.Moderator, &rec.Reason, &bannedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: querying ban for %q@%q: %w", name, server, err)
	}
	rec.BannedAt = time.Unix(bannedAt, 0)
	return &rec, nil
}

func (s *sqliteStore) AddBan(ctx context.Context, rec BanRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bans (name, server, ip, moderator, reason, banned_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name, server) DO UPDATE SET ip = excluded.ip, moderator = excluded.moderator, reason = excluded.reason, banned_at = excluded.banned_at`,
		strings.ToLower(rec.Name), rec.Server, rec.IP, rec.Moderator, rec.Reason, rec.BannedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("store: adding ban for %q@%q: %w", rec.Name, rec.Server, err)
	}
	return nil
}

func (s *sqliteStore) RemoveBan(ctx context.Context, name, server string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM bans WHERE name = ? AND server = ?`, strings.ToLower(name), server,
	)
	if err != nil {
		return fmt.Errorf("store: removing ban for %q@%q: %w", name, server, err)
	}
	return nil
}

func (s *sqliteStore) ResolveAlias(ctx context.Context, alias string) (string, bool, error) {
	var mapPath string
	err := s.db.QueryRowContext(ctx, `SELECT map_path FROM aliases WHERE alias = ?`, alias).Scan(&mapPath)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: resolving alias %q: %w", alias, err)
	}
	return mapPath, true, nil
}

func (s *sqliteStore) SetAlias(ctx context.Context, alias, mapPath string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO aliases (alias, map_path) VALUES (?, ?)
		 ON CONFLICT(alias) DO UPDATE SET map_path = excluded.map_path`,
		alias, mapPath,
	)
	if err != nil {
		return fmt.Errorf("store: setting alias %q: %w", alias, err)
	}
	return nil
}

func (s *sqliteStore) LookupCountry(ctx context.Context, ip uint32) (string, bool, error) {
	var country string
	err := s.db.QueryRowContext(ctx,
		`SELECT country FROM iptocountry WHERE ip_from <= ? AND ip_to >= ? ORDER BY ip_from DESC LIMIT 1`,
		ip, ip,
	).Scan(&country)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: looking up country for %d: %w", ip, err)
	}
	return country, true, nil
}

func (s *sqliteStore) ImportGeoIP(ctx context.Context, ranges []GeoIPRange) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: beginning geoip import: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM iptocountry`); err != nil {
		return fmt.Errorf("store: clearing iptocountry: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO iptocountry (ip_from, ip_to, country) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: preparing iptocountry insert: %w", err)
	}
	defer stmt.Close()
	for _, r := range ranges {
		if _, err := stmt.ExecContext(ctx, r.From, r.To, r.Country); err != nil {
			return fmt.Errorf("store: inserting iptocountry range: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: committing geoip import: %w", err)
	}
	return nil
}

func (s *sqliteStore) RecordGame(ctx context.Context, row GameHistoryRow) error {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	var finishedAt any
	if !row.FinishedAt.IsZero() {
		finishedAt = row.FinishedAt.Unix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO games (id, name, map_path, owner, server, started_at, finished_at, duration_ms, players)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.Name, row.MapPath, row.Owner, row.Server,
		row.StartedAt.Unix(), finishedAt, row.Duration.Milliseconds(), strings.Join(row.Players, ","),
	)
	if err != nil {
		return fmt.Errorf("store: recording game %q: %w", row.Name, err)
	}
	return nil
}

func (s *sqliteStore) IsModerator(ctx context.Context, name, server string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM moderators WHERE name = ? AND server = ?`, strings.ToLower(name), server,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("store: checking moderator %q@%q: %w", name, server, err)
	}
	return count > 0, nil
}

func (s *sqliteStore) AddModerator(ctx context.Context, rec ModeratorRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO moderators (name, server, added_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET server = excluded.server, added_at = excluded.added_at`,
		strings.ToLower(rec.Name), rec.Server, rec.AddedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("store: adding moderator %q: %w", rec.Name, err)
	}
	return nil
}

func (s *sqliteStore) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE name = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: getting config %q: %w", key, err)
	}
	return value, true, nil
}

func (s *sqliteStore) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO config (name, value) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("store: setting config %q: %w", key, err)
	}
	return nil
}
