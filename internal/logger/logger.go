// Package logger wraps zap logger construction for the application.
package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// Logger wraps a zap.Logger and allows re-initialization at a chosen level.
type Logger struct {
	// Log is the underlying zap logger. Safe for concurrent use.
	Log *zap.Logger
}

// New returns a Logger with a no-op zap logger. Call Init to activate it.
func New() *Logger {
	return &Logger{Log: zap.NewNop()}
}

// Init builds a production zap logger at the given level ("debug",
// "info", "warn", "error") and installs it on the Logger.
func (l *Logger) Init(level string) error {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	zl, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	l.Log = zl
	return nil
}
