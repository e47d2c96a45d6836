// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

/*
Package metrics provides Prometheus metrics for the terminal.

All collectors are registered with the default registry through promauto at
package load and exposed by the admin API at /metrics:

	curl http://127.0.0.1:8089/metrics

# Available Metrics

Detection:
  - tapguard_evaluations_total: Evaluated transactions (counter)
    Labels: outcome (flagged, clean)
  - tapguard_evaluation_duration_seconds: Rule engine latency (histogram)
  - tapguard_rule_flags_total: Times each rule fired (counter)
    Labels: rule
  - tapguard_warmup_records_total: On-card records replayed (counter)

Card storage:
  - tapguard_card_block_ops_total: Block reads and writes (counter)
    Labels: op (read, write), result (ok, error)
  - tapguard_card_block_retries_total: Extra attempts (counter)
    Labels: op
  - tapguard_card_block_op_duration_seconds: Block access latency (histogram)
    Labels: op
  - tapguard_card_slots_skipped_total: Ring slots treated as absent (counter)
    Labels: reason (corrupt, blank, unreadable)
  - tapguard_card_header_writes_total: Header writes (counter)
    Labels: result
  - tapguard_card_appends_total: Ring appends (counter)
    Labels: result
  - tapguard_card_recovered_appends_total: Appends rolled forward past a
    stale header (counter)

Reader:
  - tapguard_card_detect_total: Presence waits (counter)
    Labels: result (ok, timeout, canceled, error)
  - tapguard_reader_breaker_state: 0=closed, 1=half-open, 2=open (gauge)
  - tapguard_reader_breaker_transitions_total (counter)
    Labels: from, to

Terminal and API:
  - tapguard_purchases_total (counter)
    Labels: outcome (approved, flagged, append_failed, no_card, error)
  - tapguard_purchase_queue_depth (gauge)
  - tapguard_journal_appends_total (counter)
    Labels: result
  - tapguard_http_requests_total (counter)
    Labels: method, endpoint, status
  - tapguard_http_request_duration_seconds (histogram)
    Labels: method, endpoint
  - tapguard_http_requests_in_flight (gauge)

# Usage

Callers use the Record* helpers rather than touching collectors:

	start := time.Now()
	d := engine.Evaluate(tx)
	metrics.RecordEvaluation(firedRules(d), time.Since(start))
*/
package metrics
