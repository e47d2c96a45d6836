// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/tomtom215/tapguard/internal/logging"
)

func TestRequestID_GeneratesNewID(t *testing.T) {
	var capturedID string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedID = GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	responseID := rec.Header().Get(RequestIDHeader)
	if _, err := uuid.Parse(responseID); err != nil {
		t.Errorf("X-Request-ID %q is not a UUID: %v", responseID, err)
	}
	if capturedID != responseID {
		t.Errorf("context id %q != header id %q", capturedID, responseID)
	}
}

func TestRequestID_PreservesExistingID(t *testing.T) {
	var capturedID string
	handler := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		capturedID = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "till-7")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if capturedID != "till-7" || rec.Header().Get(RequestIDHeader) != "till-7" {
		t.Errorf("id = %q / %q, want till-7", capturedID, rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestID_ReplacesOversizedID(t *testing.T) {
	var capturedID string
	handler := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		capturedID = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 100))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if _, err := uuid.Parse(capturedID); err != nil {
		t.Errorf("oversized id not replaced: %q", capturedID)
	}
}

func TestRequestID_TagsContextLogger(t *testing.T) {
	var buf bytes.Buffer
	handler := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		logging.Ctx(r.Context()).Info().Msg("hello")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc123")
	ctx := logging.ContextWithLogger(req.Context(), logging.NewTestLogger(&buf))
	handler.ServeHTTP(httptest.NewRecorder(), req.WithContext(ctx))

	if !strings.Contains(buf.String(), `"request_id":"abc123"`) {
		t.Errorf("log line missing request_id: %s", buf.String())
	}
}

func TestGetRequestID_Empty(t *testing.T) {
	if got := GetRequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context()); got != "" {
		t.Errorf("GetRequestID() = %q, want empty", got)
	}
}
