// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/tomtom215/tapguard/internal/geo"
	"github.com/tomtom215/tapguard/internal/journal"
	"github.com/tomtom215/tapguard/internal/terminal"
	"github.com/tomtom215/tapguard/internal/validation"
)

// PurchaseSubmitter queues a purchase for the card worker.
// Satisfied by *terminal.Worker.
type PurchaseSubmitter interface {
	Submit(ctx context.Context, p terminal.Purchase) (*terminal.Outcome, error)
}

// JournalReader is the read side of the purchase journal.
// Satisfied by *journal.Store.
type JournalReader interface {
	Recent(ctx context.Context, n int) ([]journal.Entry, error)
	Summary(ctx context.Context) (journal.Summary, error)
}

// ReaderState reports the reader circuit breaker state.
// Satisfied by *nfc.BreakerTransceiver.
type ReaderState interface {
	State() string
}

// Config configures the handlers and router.
type Config struct {
	// DefaultRecent is the journal/recent page size without ?limit.
	DefaultRecent int
	// MaxRecent caps ?limit.
	MaxRecent int

	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitDisabled bool

	// MaxBodyBytes bounds a purchase request body.
	MaxBodyBytes int64
}

// DefaultConfig returns the admin API defaults.
func DefaultConfig() Config {
	return Config{
		DefaultRecent:     20,
		MaxRecent:         500,
		RateLimitRequests: 60,
		RateLimitWindow:   time.Minute,
		MaxBodyBytes:      4 << 10,
	}
}

// Handler serves the admin API endpoints.
type Handler struct {
	cfg       Config
	submitter PurchaseSubmitter
	journal   JournalReader
	reader    ReaderState
	started   time.Time
}

// NewHandler creates the handlers. j and reader may be nil: journal
// endpoints then answer 404 JOURNAL_DISABLED and /healthz omits the reader.
func NewHandler(cfg Config, submitter PurchaseSubmitter, j JournalReader, reader ReaderState) *Handler {
	def := DefaultConfig()
	if cfg.DefaultRecent <= 0 {
		cfg.DefaultRecent = def.DefaultRecent
	}
	if cfg.MaxRecent <= 0 {
		cfg.MaxRecent = def.MaxRecent
	}
	if cfg.DefaultRecent > cfg.MaxRecent {
		cfg.DefaultRecent = cfg.MaxRecent
	}
	if cfg.RateLimitRequests <= 0 {
		cfg.RateLimitRequests = def.RateLimitRequests
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = def.RateLimitWindow
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	return &Handler{
		cfg:       cfg,
		submitter: submitter,
		journal:   j,
		reader:    reader,
		started:   time.Now(),
	}
}

// PurchaseRequest is the body of POST /api/v1/purchases.
//
//	{"amount":"12.50","zip":"10001"}
//	{"amount":"3","merchant_id":42,"coords":{"lat":40.7,"lon":-74.0}}
type PurchaseRequest struct {
	// Amount is a decimal string in currency units.
	Amount     string         `json:"amount" validate:"required,max=32"`
	MerchantID *int           `json:"merchant_id,omitempty" validate:"omitempty,min=0,max=65535"`
	Zip        string         `json:"zip,omitempty" validate:"omitempty,zip5"`
	Coords     *CoordsRequest `json:"coords,omitempty" validate:"omitempty"`
}

// CoordsRequest is a position override.
type CoordsRequest struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lon float64 `json:"lon" validate:"longitude"`
}

func (req *PurchaseRequest) purchase() (terminal.Purchase, error) {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return terminal.Purchase{}, err
	}
	p := terminal.Purchase{Amount: amount, Zip: req.Zip}
	if req.MerchantID != nil {
		m := uint32(*req.MerchantID)
		p.MerchantID = &m
	}
	if req.Coords != nil {
		p.Coords = &geo.Point{Lat: req.Coords.Lat, Lon: req.Coords.Lon}
	}
	return p, nil
}

// Purchase handles POST /api/v1/purchases. It blocks until the worker has
// processed the purchase.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)

	var req PurchaseRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidJSON, "Request body must be a purchase JSON object", err)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidation(w, verr)
		return
	}
	p, err := req.purchase()
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidAmount, "amount must be a decimal number", err)
		return
	}

	out, err := h.submitter.Submit(r.Context(), p)
	if err != nil && out != nil {
		// The decision stands; only the card write failed.
		respondJSON(w, http.StatusOK, &APIResponse{
			Status: StatusPartial,
			Data:   out,
			Metadata: Metadata{
				Timestamp:   time.Now().UTC(),
				QueryTimeMS: time.Since(start).Milliseconds(),
			},
			Error: &validation.APIError{
				Code:    CodeAppendFailed,
				Message: "Purchase evaluated but the card was not updated, tap again",
			},
		})
		return
	}
	if err != nil {
		status, code := purchaseError(err)
		msg, ok := publicMessages[code]
		if !ok {
			msg = err.Error()
		}
		respondError(w, r, status, code, msg, err)
		return
	}
	respondData(w, StatusSuccess, out, start)
}

// JournalSummary handles GET /api/v1/journal/summary.
func (h *Handler) JournalSummary(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.journal == nil {
		respondError(w, r, http.StatusNotFound, CodeJournalDisabled, "The purchase journal is disabled", nil)
		return
	}
	summary, err := h.journal.Summary(r.Context())
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeJournal, "Failed to read the journal", err)
		return
	}
	respondData(w, StatusSuccess, summary, start)
}

// JournalRecent handles GET /api/v1/journal/recent?limit=N.
func (h *Handler) JournalRecent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.journal == nil {
		respondError(w, r, http.StatusNotFound, CodeJournalDisabled, "The purchase journal is disabled", nil)
		return
	}

	limit := h.cfg.DefaultRecent
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, r, http.StatusBadRequest, CodeValidation, "limit must be a positive integer", nil)
			return
		}
		limit = min(n, h.cfg.MaxRecent)
	}

	entries, err := h.journal.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeJournal, "Failed to read the journal", err)
		return
	}
	respondData(w, StatusSuccess, entries, start)
}

// HealthStatus is the /healthz body.
type HealthStatus struct {
	// Status is "ok", or "degraded" while the reader breaker is open.
	Status  string `json:"status"`
	Reader  string `json:"reader,omitempty"`
	Journal bool   `json:"journal"`
	Uptime  string `json:"uptime"`
}

// Health handles GET /healthz. It always answers 200 while the process
// serves requests.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	status := HealthStatus{
		Status:  "ok",
		Journal: h.journal != nil,
		Uptime:  time.Since(h.started).Truncate(time.Second).String(),
	}
	if h.reader != nil {
		status.Reader = h.reader.State()
		if status.Reader == "open" {
			status.Status = "degraded"
		}
	}
	respondJSON(w, http.StatusOK, status)
}
