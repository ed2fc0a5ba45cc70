// Package logging constructs the zap loggers used across the gateway.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the gateway's zap.Logger. level is one of debug, info,
// warn, or error (anything else falls back to info). format selects json or
// console encoding. A non-empty filePath appends to that file instead of
// stdout.
func NewLogger(level, format, filePath string) (*zap.Logger, error) {
	sink, err := openSink(filePath)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(newEncoder(format), sink, parseLevel(level))
	return zap.New(core), nil
}

func parseLevel(level string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil || lvl < zapcore.DebugLevel || lvl > zapcore.ErrorLevel {
		return zapcore.InfoLevel
	}
	return lvl
}

func newEncoder(format string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder

	if strings.EqualFold(format, "console") {
		return zapcore.NewConsoleEncoder(cfg)
	}
	return zapcore.NewJSONEncoder(cfg)
}

func openSink(filePath string) (zapcore.WriteSyncer, error) {
	if filePath == "" {
		return zapcore.AddSync(os.Stdout), nil
	}
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}
