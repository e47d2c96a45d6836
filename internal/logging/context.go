// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	// sessionIDKey carries the id of one card tap (detect through append).
	sessionIDKey contextKey = "session_id"

	// loggerKey is the context key for storing a logger instance.
	loggerKey contextKey = "logger"
)

// GenerateSessionID creates a short tap session id.
// The first 8 characters of a UUID are plenty for one terminal's log.
func GenerateSessionID() string {
	return uuid.New().String()[:8]
}

// ContextWithSessionID returns a new context carrying the given session id.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// ContextWithNewSessionID returns a context with a freshly generated session id.
//
//	ctx = logging.ContextWithNewSessionID(ctx)
func ContextWithNewSessionID(ctx context.Context) context.Context {
	return ContextWithSessionID(ctx, GenerateSessionID())
}

// SessionIDFromContext returns the session id, or "" if none is set.
func SessionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithLogger stores a logger in the context.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func ContextWithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext retrieves a logger from context, falling back to the
// global logger.
func LoggerFromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		return logger
	}
	return Logger()
}

// Ctx returns a logger with the tap session id attached when present.
//
//	logging.Ctx(ctx).Info().Msg("evaluating purchase")
//	// {"level":"info","session_id":"abc12345","message":"evaluating purchase"}
func Ctx(ctx context.Context) *zerolog.Logger {
	l := CtxWith(ctx).Logger()
	return &l
}

// CtxWith returns a logger context builder with the session id pre-populated.
//
//	l := logging.CtxWith(ctx).Str("uid", uid.String()).Logger()
func CtxWith(ctx context.Context) zerolog.Context {
	logger := LoggerFromContext(ctx)
	logCtx := logger.With()
	if id := SessionIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("session_id", id)
	}
	return logCtx
}

// CtxDebug is shorthand for Ctx(ctx).Debug().
func CtxDebug(ctx context.Context) *zerolog.Event {
	return Ctx(ctx).Debug()
}

// CtxInfo is shorthand for Ctx(ctx).Info().
func CtxInfo(ctx context.Context) *zerolog.Event {
	return Ctx(ctx).Info()
}

// CtxWarn is shorthand for Ctx(ctx).Warn().
func CtxWarn(ctx context.Context) *zerolog.Event {
	return Ctx(ctx).Warn()
}

// CtxErr is shorthand for Ctx(ctx).Err(err).
func CtxErr(ctx context.Context, err error) *zerolog.Event {
	return Ctx(ctx).Err(err)
}
