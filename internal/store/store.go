// Package store persists review workflow state, users, the audit log, and the
// consumer dependency registry in SQLite. Git holds the config content; the
// store holds everything about the process around it.
package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
	"git.home.luguber.info/inful/confgate/internal/metrics"
)

// Store wraps the SQLite database. The mutex serializes writers; the driver
// is safe for concurrent use but the workflow tables see read-modify-write
// sequences that must not interleave.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	rec metrics.Recorder
}

// New opens (or creates) the database at path and applies the schema.
// Use ":memory:" for an in-memory database.
func New(path string, rec metrics.Recorder) (*Store, error) {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, cerrors.IOFailure(err, "create database directory")
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, cerrors.Internal(err, "open sqlite database")
	}

	s := &Store{db: db, rec: rec}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, cerrors.Internal(err, "initialize schema")
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS change_requests (
		id TEXT PRIMARY KEY,
		env TEXT NOT NULL,
		domain TEXT NOT NULL,
		config_key TEXT,
		operation TEXT NOT NULL,
		content TEXT,
		title TEXT NOT NULL,
		description TEXT,
		author TEXT NOT NULL,
		status TEXT NOT NULL,
		draft_sha TEXT,
		merge_sha TEXT,
		reviewer TEXT,
		review_comment TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_changes_status ON change_requests(status);
	CREATE INDEX IF NOT EXISTS idx_changes_env ON change_requests(env);
	CREATE TABLE IF NOT EXISTS promotion_requests (
		id TEXT PRIMARY KEY,
		source_env TEXT NOT NULL,
		target_env TEXT NOT NULL,
		domain TEXT NOT NULL,
		files TEXT NOT NULL,
		requester TEXT NOT NULL,
		status TEXT NOT NULL,
		approver TEXT,
		review_comment TEXT,
		commit_sha TEXT,
		rollback_sha TEXT,
		failure TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_promotions_status ON promotion_requests(status);
	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		change_id TEXT,
		promotion_id TEXT,
		env TEXT,
		domain TEXT,
		config_key TEXT,
		commit_sha TEXT,
		detail TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_log(actor);
	CREATE INDEX IF NOT EXISTS idx_audit_config ON audit_log(domain, config_key);
	CREATE TABLE IF NOT EXISTS dependencies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		consumer TEXT NOT NULL,
		env TEXT NOT NULL,
		domain TEXT NOT NULL,
		config_key TEXT NOT NULL,
		contact TEXT,
		stale INTEGER NOT NULL DEFAULT 0,
		registered_at TEXT NOT NULL,
		last_seen_at TEXT NOT NULL,
		UNIQUE(consumer, env, domain, config_key)
	);
	CREATE INDEX IF NOT EXISTS idx_dependencies_config ON dependencies(env, domain, config_key);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	// Databases created before commit_sha existed get the column added here;
	// on current schemas the statement fails with a duplicate-column error.
	if _, err := s.db.Exec(`ALTER TABLE audit_log ADD COLUMN commit_sha TEXT`); err != nil &&
		!strings.Contains(err.Error(), "duplicate column") {
		return err
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
