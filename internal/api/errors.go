// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/tomtom215/tapguard/internal/card"
	"github.com/tomtom215/tapguard/internal/nfc"
	"github.com/tomtom215/tapguard/internal/terminal"
)

// Error codes returned in APIError.Code.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeInvalidJSON       = "INVALID_JSON"
	CodeInvalidAmount     = "INVALID_AMOUNT"
	CodeQueueFull         = "QUEUE_FULL"
	CodeWorkerStopped     = "WORKER_STOPPED"
	CodeNoCard            = "NO_CARD"
	CodeReaderUnavailable = "READER_UNAVAILABLE"
	CodeCardRead          = "CARD_READ_FAILED"
	CodeAppendFailed      = "APPEND_FAILED"
	CodeTimeout           = "TIMEOUT"
	CodeJournalDisabled   = "JOURNAL_DISABLED"
	CodeJournal           = "JOURNAL_ERROR"
	CodeRateLimited       = "RATE_LIMITED"
	CodeInternal          = "INTERNAL_ERROR"
)

// publicMessages are the client-facing texts for codes whose underlying
// error is only logged.
var publicMessages = map[string]string{
	CodeQueueFull:         "Too many purchases are waiting for the reader",
	CodeWorkerStopped:     "The terminal is shutting down",
	CodeNoCard:            "No card was presented in time",
	CodeReaderUnavailable: "The card reader is unavailable",
	CodeCardRead:          "The card could not be read, tap again",
	CodeTimeout:           "The purchase was abandoned before a card was read",
	CodeInternal:          "Internal error",
}

// purchaseError maps a purchase failure to an HTTP status and error code.
func purchaseError(err error) (int, string) {
	switch {
	case errors.Is(err, terminal.ErrInvalidPurchase):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, terminal.ErrQueueFull):
		return http.StatusServiceUnavailable, CodeQueueFull
	case errors.Is(err, terminal.ErrWorkerStopped):
		return http.StatusServiceUnavailable, CodeWorkerStopped
	case errors.Is(err, nfc.ErrReaderUnavailable):
		return http.StatusServiceUnavailable, CodeReaderUnavailable
	case errors.Is(err, nfc.ErrNoCard):
		return http.StatusRequestTimeout, CodeNoCard
	case errors.Is(err, card.ErrCommunication):
		return http.StatusBadGateway, CodeCardRead
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, CodeTimeout
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
