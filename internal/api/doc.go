// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

/*
Package api serves the terminal's local admin API with a chi router.

# Endpoints

	GET  /healthz                     liveness plus reader breaker state
	GET  /metrics                     Prometheus exposition
	POST /api/v1/purchases            queue a purchase and wait for the tap
	GET  /api/v1/journal/summary      journal totals and explainability
	GET  /api/v1/journal/recent       newest journal entries (?limit=N)

Every /api/v1 response uses the APIResponse envelope:

	{"status":"success","data":{...},"metadata":{"timestamp":"..."}}
	{"status":"error","data":null,"error":{"code":"NO_CARD","message":"..."}}

POST /api/v1/purchases blocks until a card is tapped, the detect timeout
passes, or the client gives up. When the decision was made but the card
write failed, the response has status "partial" with HTTP 200: the rule
outcome stands and the clerk should ask for a re-tap.

/api/v1 is rate limited per client IP with go-chi/httprate.
*/
package api
