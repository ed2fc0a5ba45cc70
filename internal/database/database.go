// Package database provides the durable store behind the gateway: the
// upstream token records and the append-only call log.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// DriverType represents the database driver type.
type DriverType string

const (
	// DriverSQLite represents the SQLite database driver.
	DriverSQLite DriverType = "sqlite"
	// DriverPostgres represents the PostgreSQL database driver.
	DriverPostgres DriverType = "postgres"
)

// DB represents the database connection.
type DB struct {
	db     *sql.DB
	driver DriverType
}

// Config contains the database configuration.
type Config struct {
	// Driver selects the backend ("sqlite" or "postgres").
	Driver DriverType
	// Path is the path to the SQLite database file.
	Path string
	// DSN is the PostgreSQL connection string, used when Driver is postgres.
	DSN string
	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int
	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int
	// ConnMaxLifetime is the maximum amount of time a connection may be reused.
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns a default database configuration.
func DefaultConfig() Config {
	return Config{
		Driver:          DriverSQLite,
		Path:            "data/game-gateway.db",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	}
}

// newSQLiteDB creates a new SQLite database connection.
func newSQLiteDB(config Config) (*DB, error) {
	if err := ensureDirExists(filepath.Dir(config.Path)); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", config.Path+"?_journal=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// In-memory SQLite databases are per-connection. Use a single connection
	// so schema and data are visible across queries on the same handle.
	if config.Path == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(config.MaxOpenConns)
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &DB{db: db, driver: DriverSQLite}, nil
}

// New creates a new SQLite-backed database connection. Use NewFromConfig to
// select the backend by configuration.
func New(config Config) (*DB, error) {
	return newSQLiteDB(config)
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db != nil {
		_ = d.db.Close()
	}
	return nil
}

// Driver returns the active database driver.
func (d *DB) Driver() DriverType {
	return d.driver
}

// rebind rewrites '?' placeholders to '$n' for the Postgres driver. Queries
// throughout this package are written with '?' placeholders.
func (d *DB) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// ensureDirExists creates the directory if it doesn't exist.
func ensureDirExists(dir string) error {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return os.MkdirAll(dir, 0755)
	} else if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path %s exists and is not a directory", dir)
	}
	return nil
}

// initSchema initializes the database with the necessary tables and indexes.
// The DDL is restricted to forms accepted by both SQLite and PostgreSQL.
func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
	-- Upstream bearer token records. Append-only: each refresh inserts a new
	-- row and the latest row by created_at wins.
	CREATE TABLE IF NOT EXISTS game_api_tokens (
		id TEXT PRIMARY KEY,
		token TEXT NOT NULL,
		expiration BIGINT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_game_api_tokens_created_at ON game_api_tokens(created_at);

	-- Append-only log of upstream call attempts.
	CREATE TABLE IF NOT EXISTS game_api_call_logs (
		id TEXT PRIMARY KEY,
		timestamp TIMESTAMP NOT NULL,
		endpoint TEXT NOT NULL,
		method TEXT NOT NULL,
		request_body TEXT,
		response_body TEXT,
		status_code INTEGER NOT NULL,
		error_message TEXT,
		execution_time_ms BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_call_logs_timestamp ON game_api_call_logs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_call_logs_endpoint ON game_api_call_logs(endpoint);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
