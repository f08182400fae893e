// Package store persists clients, cases, documents, storage configs and
// sync runs in SQLite or PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	sqliteParams = "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
	dataDirPerm  = 0o700
)

// Store is a database/sql backed store.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the database, verifies the connection and applies
// the schema.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
		if err := ensureSQLiteDir(dsn); err != nil {
			return nil, err
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?" + sqliteParams
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if driver == DriverSQLite {
		// One writer at a time; WAL lets readers proceed.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

func ensureSQLiteDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), dataDirPerm); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL. Queries in this
// package never contain a literal question mark.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

func (s *Store) migrate(ctx context.Context) error {
	tsType, bigint := "TIMESTAMP", "INTEGER"
	if s.driver == DriverPostgres {
		tsType, bigint = "TIMESTAMPTZ", "BIGINT"
	}
	schema := strings.NewReplacer("{ts}", tsType, "{bigint}", bigint).Replace(schemaTemplate)

	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w\n%s", err, strings.TrimSpace(stmt))
		}
	}
	return nil
}

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS clients (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	display_name TEXT NOT NULL,
	identity_number TEXT NOT NULL DEFAULT '',
	remote_folder_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_clients_tenant ON clients(tenant_id);

CREATE TABLE IF NOT EXISTS cases (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	client_id TEXT NOT NULL REFERENCES clients(id),
	case_number TEXT NOT NULL DEFAULT '',
	remote_folder_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_cases_tenant ON cases(tenant_id);

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	case_id TEXT,
	client_id TEXT,
	remote_file_id TEXT NOT NULL,
	name TEXT NOT NULL,
	mime_type TEXT NOT NULL DEFAULT '',
	size_bytes {bigint} NOT NULL DEFAULT 0,
	remote_modified_at {ts} NOT NULL,
	sharing_link TEXT NOT NULL DEFAULT '',
	remote_path TEXT NOT NULL DEFAULT '',
	source_kind TEXT NOT NULL,
	needs_classification BOOLEAN NOT NULL,
	classified_at {ts},
	created_at {ts} NOT NULL,
	updated_at {ts} NOT NULL,
	UNIQUE (tenant_id, remote_file_id)
);

CREATE INDEX IF NOT EXISTS idx_documents_tenant_source ON documents(tenant_id, source_kind);

CREATE TABLE IF NOT EXISTS sync_runs (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at {ts} NOT NULL,
	completed_at {ts},
	files_scanned INTEGER NOT NULL DEFAULT 0,
	files_added INTEGER NOT NULL DEFAULT 0,
	files_updated INTEGER NOT NULL DEFAULT 0,
	files_needs_classification INTEGER NOT NULL DEFAULT 0,
	stale_count INTEGER NOT NULL DEFAULT 0,
	errors TEXT NOT NULL DEFAULT '[]',
	duration_ms {bigint} NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_tenant_started ON sync_runs(tenant_id, started_at);

CREATE TABLE IF NOT EXISTS storage_configs (
	tenant_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	root_folder_id TEXT NOT NULL DEFAULT '',
	enabled BOOLEAN NOT NULL DEFAULT TRUE,
	last_sync_at {ts},
	PRIMARY KEY (tenant_id, provider)
);
`
