// Package storage manages the embedded SQLite store that lives in each
// project's working directory: view metadata, generated data tables and the
// sidecar tables describing their columns.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/matsen/jsonviews/internal/apperr"
	"github.com/matsen/jsonviews/internal/config"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SchemaVersion is the version of the metadata schema created by Open.
const SchemaVersion = "1"

// DefaultBusyTimeout is how long SQLite waits on a locked database.
const DefaultBusyTimeout = 5 * time.Second

// Manager wraps the SQLite connection for one project working directory.
// It holds no business rules: callers decide what to store.
type Manager struct {
	mu          sync.Mutex
	db          *sql.DB
	workingDir  string
	path        string
	log         *zap.Logger
	now         func() time.Time
	busyTimeout time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// WithClock overrides the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithBusyTimeout sets the SQLite busy timeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.busyTimeout = d
	}
}

// Open opens or creates the store for workingDir and ensures the metadata schema exists.
func Open(ctx context.Context, workingDir string, opts ...Option) (*Manager, error) {
	const op = "storage.open"

	if workingDir == "" {
		return nil, apperr.Validation(op, "working directory is required")
	}
	abs, err := filepath.Abs(workingDir)
	if err != nil {
		return nil, apperr.Validation(op, "resolving working directory %q: %v", workingDir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.Validation(op, "working directory does not exist: %s", abs)
		}
		return nil, wrapErr(op, err, "checking working directory")
	}
	if !info.IsDir() {
		return nil, apperr.Validation(op, "working directory is not a directory: %s", abs)
	}

	m := &Manager{
		workingDir:  abs,
		path:        config.DBPath(abs),
		log:         zap.NewNop(),
		now:         time.Now,
		busyTimeout: DefaultBusyTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := os.MkdirAll(config.StatePath(abs), 0755); err != nil {
		return nil, wrapErr(op, err, "creating %s directory", config.StateDir)
	}

	db, err := sql.Open("sqlite", dataSourceName(m.path, m.busyTimeout))
	if err != nil {
		return nil, wrapErr(op, err, "opening database")
	}

	// SQLite doesn't support concurrent writes
	db.SetMaxOpenConns(1)

	if err := createSchema(ctx, db); err != nil {
		db.Close()
		return nil, wrapErr(op, err, "creating schema")
	}

	m.db = db
	if err := m.initMeta(ctx); err != nil {
		db.Close()
		m.db = nil
		return nil, err
	}

	m.log.Debug("opened project store", zap.String("path", m.path))
	return m, nil
}

// dataSourceName applies the connection pragmas through the DSN so that every
// connection the pool opens gets them, including one replaced after a
// cancelled transaction.
func dataSourceName(path string, busyTimeout time.Duration) string {
	pragmas := []string{
		fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()),
		"foreign_keys(1)",
		"journal_mode(WAL)",
	}
	return path + "?_pragma=" + strings.Join(pragmas, "&_pragma=")
}

// createSchema creates the metadata tables if they don't exist.
func createSchema(ctx context.Context, db *sql.DB) error {
	schema := `
		-- View metadata. name_key holds the case-folded name and is the
		-- authoritative uniqueness constraint.
		CREATE TABLE IF NOT EXISTS views (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL COLLATE NOCASE,
			name_key TEXT NOT NULL UNIQUE,
			created_at INTEGER NOT NULL,
			last_modified INTEGER NOT NULL,
			last_query TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_views_last_modified ON views(last_modified DESC);

		-- One row per generated data table
		CREATE TABLE IF NOT EXISTS data_tables (
			view_id TEXT PRIMARY KEY,
			table_name TEXT NOT NULL UNIQUE,
			column_count INTEGER NOT NULL,
			fingerprint TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);

		-- Sidecar mapping from positional columns to inferred definitions
		CREATE TABLE IF NOT EXISTS data_columns (
			view_id TEXT NOT NULL REFERENCES data_tables(view_id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			column_name TEXT NOT NULL,
			name TEXT NOT NULL,
			path TEXT NOT NULL,
			type TEXT NOT NULL,
			PRIMARY KEY (view_id, position)
		);

		CREATE TABLE IF NOT EXISTS _meta (
			key TEXT PRIMARY KEY,
			value TEXT
		);
	`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// WorkingDir returns the absolute project working directory.
func (m *Manager) WorkingDir() string {
	return m.workingDir
}

// Path returns the path to the SQLite database file.
func (m *Manager) Path() string {
	return m.path
}

// IsConnected reports whether the connection is open and responsive.
// A ping that times out because the single connection is busy still counts
// as connected.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	db := m.db
	m.mu.Unlock()
	if db == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := db.PingContext(ctx)
	return err == nil || errors.Is(err, context.DeadlineExceeded)
}

// Close closes the connection. It is safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	if err != nil {
		return wrapErr("storage.close", err, "closing database")
	}
	m.log.Debug("closed project store", zap.String("path", m.path))
	return nil
}

// conn returns the open handle or a storage error if closed.
func (m *Manager) conn(op string) (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return nil, apperr.Storage(op, nil, "database is closed")
	}
	return m.db, nil
}
