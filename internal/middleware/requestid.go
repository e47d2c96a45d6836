// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/tomtom215/tapguard/internal/logging"
)

type contextKey string

// RequestIDKey is the context key holding the request id.
const RequestIDKey contextKey = "request_id"

// RequestIDHeader is read from the request and echoed on the response.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns each request an id, echoes it in X-Request-ID and
// stores a logger carrying it in the request context, so
// logging.Ctx(r.Context()) lines are tagged with request_id.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		logger := logging.LoggerFromContext(ctx).With().Str("request_id", requestID).Logger()
		ctx = logging.ContextWithLogger(ctx, logger)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID extracts the request ID from context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
