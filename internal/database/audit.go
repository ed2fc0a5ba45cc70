package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cursor2b-collab/vip-sub001/internal/audit"
)

// CallLog is a persisted audit record as read back from the database.
type CallLog struct {
	ID              string
	Timestamp       time.Time
	Endpoint        string
	Method          string
	RequestBody     sql.NullString
	ResponseBody    sql.NullString
	StatusCode      int
	ErrorMessage    sql.NullString
	ExecutionTimeMS int64
}

// CallLogFilters provides filtering options for call log queries.
type CallLogFilters struct {
	Endpoint   string
	Method     string
	StatusCode int
	StartTime  *time.Time
	EndTime    *time.Time
	Limit      int
	Offset     int
}

// StoreCallLog persists an audit record to the database.
func (d *DB) StoreCallLog(ctx context.Context, record *audit.Record) error {
	if d == nil || d.db == nil {
		return fmt.Errorf("database is nil")
	}
	if record == nil {
		return fmt.Errorf("audit record cannot be nil")
	}

	query := d.rebind(`
		INSERT INTO game_api_call_logs (
			id, timestamp, endpoint, method, request_body, response_body,
			status_code, error_message, execution_time_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := d.db.ExecContext(ctx, query,
		uuid.New().String(),
		record.Timestamp,
		record.Endpoint,
		record.Method,
		record.RequestBody,
		record.ResponseBody,
		record.StatusCode,
		record.ErrorMessage,
		record.ExecutionTimeMS,
	)
	if err != nil {
		return fmt.Errorf("failed to insert call log: %w", err)
	}
	return nil
}

// ListCallLogs retrieves call logs with optional filtering, newest first.
func (d *DB) ListCallLogs(ctx context.Context, filters CallLogFilters) ([]CallLog, error) {
	query := "SELECT id, timestamp, endpoint, method, request_body, response_body, status_code, error_message, execution_time_ms FROM game_api_call_logs WHERE 1=1"
	args := []interface{}{}

	if filters.Endpoint != "" {
		query += " AND endpoint = ?"
		args = append(args, filters.Endpoint)
	}
	if filters.Method != "" {
		query += " AND method = ?"
		args = append(args, filters.Method)
	}
	if filters.StatusCode != 0 {
		query += " AND status_code = ?"
		args = append(args, filters.StatusCode)
	}
	if filters.StartTime != nil {
		query += " AND timestamp >= ?"
		args = append(args, *filters.StartTime)
	}
	if filters.EndTime != nil {
		query += " AND timestamp <= ?"
		args = append(args, *filters.EndTime)
	}

	query += " ORDER BY timestamp DESC"

	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
		if filters.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filters.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query call logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var logs []CallLog
	for rows.Next() {
		var log CallLog
		err := rows.Scan(
			&log.ID,
			&log.Timestamp,
			&log.Endpoint,
			&log.Method,
			&log.RequestBody,
			&log.ResponseBody,
			&log.StatusCode,
			&log.ErrorMessage,
			&log.ExecutionTimeMS,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call log: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating call logs: %w", err)
	}

	return logs, nil
}

// CountCallLogs returns the total count of call logs matching the filters.
func (d *DB) CountCallLogs(ctx context.Context, filters CallLogFilters) (int, error) {
	query := "SELECT COUNT(*) FROM game_api_call_logs WHERE 1=1"
	args := []interface{}{}

	if filters.Endpoint != "" {
		query += " AND endpoint = ?"
		args = append(args, filters.Endpoint)
	}
	if filters.Method != "" {
		query += " AND method = ?"
		args = append(args, filters.Method)
	}
	if filters.StatusCode != 0 {
		query += " AND status_code = ?"
		args = append(args, filters.StatusCode)
	}
	if filters.StartTime != nil {
		query += " AND timestamp >= ?"
		args = append(args, *filters.StartTime)
	}
	if filters.EndTime != nil {
		query += " AND timestamp <= ?"
		args = append(args, *filters.EndTime)
	}

	var count int
	if err := d.db.QueryRowContext(ctx, d.rebind(query), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count call logs: %w", err)
	}
	return count, nil
}
