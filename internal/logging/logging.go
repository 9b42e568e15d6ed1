// Package logging constructs the logr loggers used across the library.
// Verbosity levels map onto negative zap levels, so V(TRACE) output is
// only emitted when the logger was built with that level enabled.
package logging

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels used with logger.V(...).
const (
	INFO  = 0
	DEBUG = 1
	TRACE = 2
)

// New creates a zap-backed logr.Logger. Development mode enables console
// encoding and caller annotation; level is the highest V level emitted.
func New(development bool, level int) logr.Logger {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-1 * level))
	zl, err := cfg.Build()
	if err != nil {
		// fall back to a no-op logger rather than failing the caller
		return logr.Discard()
	}
	return zapr.NewLogger(zl)
}

// NewTestLogger creates a new zap logger using the dev mode with trace
// verbosity enabled.
func NewTestLogger() logr.Logger {
	return New(true, TRACE)
}
