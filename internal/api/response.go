// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tapguard/internal/logging"
	"github.com/tomtom215/tapguard/internal/validation"
)

// Response statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusError   = "error"
)

// APIResponse is the envelope of every /api/v1 response.
type APIResponse struct {
	Status   string               `json:"status"`
	Data     interface{}          `json:"data"`
	Metadata Metadata             `json:"metadata"`
	Error    *validation.APIError `json:"error,omitempty"`
}

// Metadata carries response timing.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// sanitizeLogValue escapes control characters so client input cannot forge
// log lines.
func sanitizeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&b, "\\x%02x", r)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondData(w http.ResponseWriter, status string, data interface{}, start time.Time) {
	respondJSON(w, http.StatusOK, &APIResponse{
		Status: status,
		Data:   data,
		Metadata: Metadata{
			Timestamp:   time.Now().UTC(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}

// respondError sends an error envelope. err is logged, never sent.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	if err != nil {
		logging.Ctx(r.Context()).Warn().
			Str("code", code).
			Str("path", sanitizeLogValue(r.URL.Path)).
			Str("error", sanitizeLogValue(err.Error())).
			Msg("API error")
	}
	respondJSON(w, status, &APIResponse{
		Status:   StatusError,
		Metadata: Metadata{Timestamp: time.Now().UTC()},
		Error:    &validation.APIError{Code: code, Message: message},
	})
}

func respondValidation(w http.ResponseWriter, verr *validation.RequestValidationError) {
	respondJSON(w, http.StatusBadRequest, &APIResponse{
		Status:   StatusError,
		Metadata: Metadata{Timestamp: time.Now().UTC()},
		Error:    verr.ToAPIError(),
	})
}
