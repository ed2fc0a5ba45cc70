package audit

import (
	"context"

	"go.uber.org/zap"
)

// Store persists audit records. Implemented by the database package.
type Store interface {
	StoreCallLog(ctx context.Context, record *Record) error
}

// Logger writes audit records to a durable store and mirrors them to the
// application log. Persistence failures are logged and swallowed: audit
// logging must never fail the caller's request.
type Logger struct {
	store Store
	log   *zap.Logger
}

// NewLogger creates a new audit logger. store may be nil, in which case
// records are only mirrored to the application log.
func NewLogger(store Store, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{store: store, log: log}
}

// Log persists a record. It never returns an error; a failed durable write
// is reported on the application log and otherwise ignored.
func (l *Logger) Log(ctx context.Context, record *Record) {
	if record == nil {
		return
	}

	fields := []zap.Field{
		zap.String("endpoint", record.Endpoint),
		zap.String("method", record.Method),
		zap.Int("status", record.StatusCode),
		zap.Int64("execution_time_ms", record.ExecutionTimeMS),
	}
	if record.ErrorMessage != nil {
		fields = append(fields, zap.String("error", *record.ErrorMessage))
		l.log.Warn("upstream call failed", fields...)
	} else {
		l.log.Info("upstream call", fields...)
	}

	if l.store == nil {
		return
	}
	if err := l.store.StoreCallLog(ctx, record); err != nil {
		l.log.Error("failed to persist audit record", zap.Error(err),
			zap.String("endpoint", record.Endpoint))
	}
}
