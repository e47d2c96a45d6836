// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

/*
Package middleware provides the HTTP middleware used by the admin API.

  - RequestID: X-Request-ID propagation and a request-scoped zerolog logger
  - PrometheusMetrics: request count, latency and in-flight gauges labelled
    by chi route pattern

Both are plain func(http.Handler) http.Handler and plug into chi's r.Use:

	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
*/
package middleware
