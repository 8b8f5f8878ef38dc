// Package sqlite implements the relational stores on SQLite via
// database/sql with the modernc.org/sqlite driver.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fieldops/instalog/internal/common"
	"github.com/fieldops/instalog/internal/interfaces"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS installations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	driver_brand TEXT NOT NULL DEFAULT '',
	driver_version TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'unknown',
	client_name TEXT NOT NULL DEFAULT '',
	driver_description TEXT NOT NULL DEFAULT '',
	installation_time_seconds INTEGER NOT NULL DEFAULT 0,
	os_info TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS incidents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	installation_id INTEGER NOT NULL,
	reporter_username TEXT NOT NULL DEFAULT '',
	note TEXT NOT NULL,
	time_adjustment_seconds INTEGER NOT NULL DEFAULT 0,
	severity TEXT NOT NULL,
	source TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_incidents_installation ON incidents(installation_id);

CREATE TABLE IF NOT EXISTS incident_photos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	incident_id INTEGER NOT NULL,
	r2_key TEXT NOT NULL,
	file_name TEXT NOT NULL,
	content_type TEXT NOT NULL,
	size_bytes INTEGER NOT NULL,
	sha256 TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_photos_incident ON incident_photos(incident_id);

CREATE TABLE IF NOT EXISTS web_users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	password_hash_type TEXT NOT NULL,
	role TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	last_login_at TEXT
);

CREATE TABLE IF NOT EXISTS audit_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	action TEXT NOT NULL,
	username TEXT NOT NULL DEFAULT '',
	success INTEGER NOT NULL DEFAULT 0,
	details TEXT NOT NULL DEFAULT '',
	computer_name TEXT NOT NULL DEFAULT '',
	ip_address TEXT NOT NULL DEFAULT '',
	platform TEXT NOT NULL DEFAULT ''
);
`

// Incident rows reference installations without an enforced foreign key:
// installation deletion does not cascade, and orphaned incidents stay
// readable.

// Store wraps the SQLite handle and exposes the entity stores.
type Store struct {
	db     *sql.DB
	logger *common.Logger
}

// Open opens (or creates) the database at path, applies the production
// pragmas, and ensures the schema. Path ":memory:" opens an in-memory
// database pinned to a single connection.
func Open(logger *common.Logger, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database opened")
	return &Store{db: db, logger: logger}, nil
}

// Installations returns the installation store.
func (s *Store) Installations() interfaces.InstallationStore {
	return &installationStore{db: s.db}
}

// Incidents returns the incident store.
func (s *Store) Incidents() interfaces.IncidentStore {
	return &incidentStore{db: s.db}
}

// Photos returns the photo metadata store.
func (s *Store) Photos() interfaces.PhotoStore {
	return &photoStore{db: s.db}
}

// Users returns the web user store.
func (s *Store) Users() interfaces.UserStore {
	return &userStore{db: s.db}
}

// AuditLogs returns the audit log store.
func (s *Store) AuditLogs() interfaces.AuditStore {
	return &auditStore{db: s.db}
}

// Close shuts down the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// timeFormat is the stored timestamp layout. RFC 3339 in UTC sorts
// lexicographically, which the ORDER BY clauses rely on.
const timeFormat = time.RFC3339

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
