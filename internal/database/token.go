package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/cursor2b-collab/vip-sub001/internal/token"
)

// InsertToken persists a new upstream token record. Records are never
// updated in place; each refresh inserts a fresh row.
func (d *DB) InsertToken(ctx context.Context, record token.Record) error {
	if d == nil || d.db == nil {
		return fmt.Errorf("database is nil")
	}
	if record.Token == "" {
		return fmt.Errorf("token cannot be empty")
	}

	query := d.rebind(`
		INSERT INTO game_api_tokens (id, token, expiration, created_at)
		VALUES (?, ?, ?, ?)
	`)
	_, err := d.db.ExecContext(ctx, query,
		uuid.New().String(),
		record.Token,
		record.Expiration,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert token record: %w", err)
	}
	return nil
}

// LatestToken returns the most recently created token record, or
// token.ErrNoToken when the store holds none. Historical records coexist;
// latest-by-creation-time wins.
func (d *DB) LatestToken(ctx context.Context) (*token.Record, error) {
	if d == nil || d.db == nil {
		return nil, fmt.Errorf("database is nil")
	}

	query := d.rebind(`
		SELECT token, expiration, created_at
		FROM game_api_tokens
		ORDER BY created_at DESC
		LIMIT 1
	`)

	var record token.Record
	err := d.db.QueryRowContext(ctx, query).Scan(
		&record.Token,
		&record.Expiration,
		&record.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, token.ErrNoToken
		}
		return nil, fmt.Errorf("failed to query latest token: %w", err)
	}
	return &record, nil
}
