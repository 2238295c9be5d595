// Package sqlite implements the storage engine on a single SQLite file with
// WAL journaling, foreign keys on, and FTS5 full-text search.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	_ "modernc.org/sqlite"

	"github.com/RBarbieri13/decant/internal/common"
)

// DB manages the SQLite database connection shared by all stores.
type DB struct {
	db     *sql.DB
	logger arbor.ILogger
	config *common.StorageConfig
}

// Open opens (creating if needed) the database, applies pragmas, and runs
// pending migrations. The server must not accept requests before this
// returns.
func Open(logger arbor.ILogger, config *common.StorageConfig) (*DB, error) {
	dir := filepath.Dir(config.DatabasePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// modernc.org/sqlite registers the "sqlite" driver name (not "sqlite3").
	db, err := sql.Open("sqlite", config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Writers serialize through WAL; a single connection avoids
	// SQLITE_BUSY churn under concurrent imports.
	db.SetMaxOpenConns(1)

	s := &DB{
		db:     db,
		logger: logger,
		config: config,
	}

	if err := s.configure(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info().Str("path", config.DatabasePath).Msg("SQLite database initialized")
	return s, nil
}

func (s *DB) configure() error {
	cacheSizeMB := s.config.CacheSizeMB
	if cacheSizeMB <= 0 {
		cacheSizeMB = 16
	}
	busyTimeout := s.config.BusyTimeoutMS
	if busyTimeout <= 0 {
		busyTimeout = 5000
	}

	pragmas := []string{
		fmt.Sprintf("PRAGMA cache_size = -%d", cacheSizeMB*1024),
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout),
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	if s.config.WALMode {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

// Ping verifies the connection, for readiness probes.
func (s *DB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *DB) Close() error {
	return s.db.Close()
}
