package database

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
)

// NewFromConfig creates a database connection for the configured driver.
func NewFromConfig(config Config) (*DB, error) {
	switch DriverType(strings.ToLower(string(config.Driver))) {
	case DriverSQLite, "":
		return newSQLiteDB(config)
	case DriverPostgres:
		return newPostgresDB(config)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", config.Driver)
	}
}

// newPostgresDB creates a new PostgreSQL database connection using the pgx
// stdlib driver.
func newPostgresDB(config Config) (*DB, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("DSN is required for the postgres driver")
	}

	db, err := sql.Open("pgx", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL database: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize PostgreSQL database: %w", err)
	}

	return &DB{db: db, driver: DriverPostgres}, nil
}
