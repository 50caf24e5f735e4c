// Package storage provides the SQLite-backed durable store for the
// vulngraph engine.
//
// Every query shape the engine needs is a typed method on Store; callers
// never assemble SQL fragments. Transitive closures are computed inside the
// store as single recursive queries so one closure costs one round trip.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/exploopio/vulngraph/pkg/errors"
)

// Store provides SQLite-based graph storage.
type Store struct {
	db  *sql.DB
	cfg *Config
}

// Config configures the store.
type Config struct {
	// DatabasePath is the SQLite database file. ":memory:" is accepted
	// for tests.
	DatabasePath string

	// BusyTimeout bounds lock waits between concurrent operations.
	BusyTimeout time.Duration
}

// DefaultConfig returns default store configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		DatabasePath: filepath.Join(homeDir, ".vulngraph", "graph.db"),
		BusyTimeout:  5 * time.Second,
	}
}

// New opens (creating if necessary) the graph store.
func New(cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if cfg.DatabasePath != ":memory:" {
		dir := filepath.Dir(cfg.DatabasePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout.Milliseconds()),
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := &Store{
		db:  db,
		cfg: cfg,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return s, nil
}

// initSchema creates the database tables if they don't exist.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS package (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		package_type TEXT NOT NULL,
		package_namespace TEXT,
		package_name TEXT NOT NULL,
		version TEXT NOT NULL,
		qualifiers TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_package_identity ON package(
		package_type,
		IFNULL(package_namespace, CHAR(0)),
		package_name,
		version,
		qualifiers
	);

	CREATE TABLE IF NOT EXISTS package_qualifier (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		package_id INTEGER NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		FOREIGN KEY (package_id) REFERENCES package(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_package_qualifier_package_id
		ON package_qualifier(package_id);

	CREATE TABLE IF NOT EXISTS package_dependency (
		dependent_package_id INTEGER NOT NULL,
		dependency_package_id INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(dependent_package_id, dependency_package_id),
		FOREIGN KEY (dependent_package_id) REFERENCES package(id),
		FOREIGN KEY (dependency_package_id) REFERENCES package(id)
	);

	CREATE TABLE IF NOT EXISTS sbom (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id TEXT NOT NULL,
		location TEXT NOT NULL,
		sha256 TEXT NOT NULL,
		title TEXT,
		published TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(location, sha256)
	);

	CREATE TABLE IF NOT EXISTS cpe (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uri TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS sbom_describes_package (
		sbom_id INTEGER NOT NULL,
		package_id INTEGER NOT NULL,
		UNIQUE(sbom_id, package_id),
		FOREIGN KEY (sbom_id) REFERENCES sbom(id),
		FOREIGN KEY (package_id) REFERENCES package(id)
	);

	CREATE TABLE IF NOT EXISTS sbom_describes_cpe (
		sbom_id INTEGER NOT NULL,
		cpe_id INTEGER NOT NULL,
		UNIQUE(sbom_id, cpe_id),
		FOREIGN KEY (sbom_id) REFERENCES sbom(id),
		FOREIGN KEY (cpe_id) REFERENCES cpe(id)
	);

	CREATE TABLE IF NOT EXISTS package_relates_to_package (
		sbom_id INTEGER NOT NULL,
		left_package_id INTEGER NOT NULL,
		relationship INTEGER NOT NULL,
		right_package_id INTEGER NOT NULL,
		UNIQUE(sbom_id, left_package_id, relationship, right_package_id),
		FOREIGN KEY (sbom_id) REFERENCES sbom(id),
		FOREIGN KEY (left_package_id) REFERENCES package(id),
		FOREIGN KEY (right_package_id) REFERENCES package(id)
	);

	CREATE INDEX IF NOT EXISTS idx_relates_sbom_right
		ON package_relates_to_package(sbom_id, relationship, right_package_id);

	CREATE TABLE IF NOT EXISTS sbom_document (
		sbom_id INTEGER PRIMARY KEY,
		algorithm TEXT NOT NULL,
		raw_size INTEGER NOT NULL,
		data BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (sbom_id) REFERENCES sbom(id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// isUniqueViolation reports whether err is a uniqueness-constraint failure.
// The sqlite driver does not export a typed error for this, so the message
// is the contract.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed: UNIQUE")
}

// placeholders renders "?, ?, ..." for n parameters.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// storageErr classifies a raw database error for the caller.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return nil
	}
	return errors.Storage(op, err)
}
