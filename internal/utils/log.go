// Package utils
package utils

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	once   sync.Once
)

// NewLogger builds a production zap logger at the given level. When file is
// non-empty the output is appended to it, otherwise it goes to stderr.
func NewLogger(level, file string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.InitialFields = map[string]any{"app": "signal-trader"}
	if file != "" {
		cfg.OutputPaths = []string{file}
		cfg.ErrorOutputPaths = []string{file}
	}
	return cfg.Build()
}

// SetLogger replaces the process-wide logger. It must be called before the
// first GetLogger call to take effect.
func SetLogger(l *zap.Logger) {
	once.Do(func() {
		logger = l
	})
}

// GetLogger returns the process-wide logger, falling back to a stderr
// production logger when none was installed.
func GetLogger() *zap.Logger {
	once.Do(func() {
		l, err := NewLogger("info", "")
		if err != nil {
			l = zap.NewNop()
		}
		logger = l
	})
	return logger
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
