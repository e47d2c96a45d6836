// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/tapguard/internal/middleware"
)

// NewRouter builds the admin API router.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)

	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.rateLimit())

		r.Post("/purchases", h.Purchase)
		r.Get("/journal/summary", h.JournalSummary)
		r.Get("/journal/recent", h.JournalRecent)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "No such endpoint", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	return r
}

// rateLimit limits /api/v1 per client IP.
func (h *Handler) rateLimit() func(http.Handler) http.Handler {
	if h.cfg.RateLimitDisabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return httprate.Limit(
		h.cfg.RateLimitRequests,
		h.cfg.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, r, http.StatusTooManyRequests, CodeRateLimited, "Too many requests", nil)
		}),
	)
}
