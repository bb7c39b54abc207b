package logging

import (
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels passed to logr.Logger.V.
const (
	DEFAULT = 0
	VERBOSE = 1
	DEBUG   = 2
	TRACE   = 3
)

var levelNames = map[string]int{
	"default": DEFAULT,
	"info":    DEFAULT,
	"verbose": VERBOSE,
	"debug":   DEBUG,
	"trace":   TRACE,
}

// ParseLevel maps a level name from config or flags to a verbosity.
func ParseLevel(name string) (int, error) {
	if name == "" {
		return DEFAULT, nil
	}
	lvl, ok := levelNames[strings.ToLower(name)]
	if !ok {
		return DEFAULT, fmt.Errorf("unknown log level %q", name)
	}
	return lvl, nil
}

// New builds a zap backed logger that emits messages up to verbosity level.
// dev switches to the console encoder with caller information.
func New(level int, dev bool) (logr.Logger, error) {
	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	// logr V(n) maps to zap level -n
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-level))
	cfg.DisableStacktrace = !dev
	z, err := cfg.Build()
	if err != nil {
		return logr.Discard(), err
	}
	return zapr.NewLogger(z), nil
}

// NewTestLogger creates a development logger that prints every level.
func NewTestLogger() logr.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-TRACE))
	return zapr.NewLogger(zap.Must(cfg.Build()))
}
