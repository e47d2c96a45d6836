// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Unknown values fall back to info.
	Level string

	// Format is json or console. Console is meant for an operator at the
	// terminal running tap or inspect by hand.
	Format string

	// Caller includes caller file and line number in logs.
	Caller bool

	// Timestamp enables timestamps in log output.
	Timestamp bool

	// Service is stamped on every entry. Empty omits the field.
	Service string

	// Output defaults to os.Stderr so command output on stdout stays
	// machine readable.
	Output io.Writer
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Format:    "json",
		Timestamp: true,
		Service:   "tapguard",
		Output:    os.Stderr,
	}
}

var (
	log zerolog.Logger
	mu  sync.RWMutex
)

//nolint:gochecknoinits // logging works before Init is called
func init() {
	log = build(DefaultConfig())
}

// Init replaces the global logger. It may be called again to reconfigure.
func Init(cfg Config) {
	l := build(cfg)
	mu.Lock()
	log = l
	mu.Unlock()
}

func build(cfg Config) zerolog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFieldName = "time"
	zerolog.MessageFieldName = "message"

	out := cfg.Output
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: "15:04:05"}
	}

	zctx := zerolog.New(out).With()
	if cfg.Timestamp {
		zctx = zctx.Timestamp()
	}
	if cfg.Caller {
		zctx = zctx.Caller()
	}
	if cfg.Service != "" {
		zctx = zctx.Str("service", cfg.Service)
	}
	return zctx.Logger()
}

// parseLevel maps a level name to zerolog. "warning" is accepted for warn;
// anything unknown is info.
func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	if level == "" {
		return zerolog.InfoLevel
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// Logger returns the global logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// SetLogger replaces the global logger, mainly for tests.
//
//nolint:gocritic // zerolog.Logger is passed by value
func SetLogger(l zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	log = l
}

// With creates a child logger with additional context.
//
//	storeLog := logging.With().Str("card", uid.String()).Logger()
func With() zerolog.Context {
	mu.RLock()
	defer mu.RUnlock()
	return log.With()
}

// Debug starts a new message with debug level.
func Debug() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return log.Debug()
}

// Info starts a new message with info level.
func Info() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return log.Info()
}

// Warn starts a new message with warning level.
func Warn() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return log.Warn()
}

// Error starts a new message with error level.
func Error() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return log.Error()
}

// Err starts an error-level message carrying err.
//
//	logging.Err(err).Msg("header write failed")
func Err(err error) *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return log.Err(err)
}

// WithComponent creates a child logger with a component field.
//
//	cardLog := logging.WithComponent("card")
func WithComponent(component string) zerolog.Logger {
	return With().Str("component", component).Logger()
}

// NewTestLogger creates a logger that writes to w.
//
//	var buf bytes.Buffer
//	logging.SetLogger(logging.NewTestLogger(&buf))
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}
