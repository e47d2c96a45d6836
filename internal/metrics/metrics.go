// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values shared by several metrics.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

var (
	// Detection Metrics
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapguard_evaluations_total",
			Help: "Total number of transactions evaluated by the rule engine",
		},
		[]string{"outcome"}, // "flagged", "clean"
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tapguard_evaluation_duration_seconds",
			Help:    "Time spent evaluating one transaction against every rule",
			Buckets: []float64{.00001, .00005, .0001, .00025, .0005, .001, .005, .01},
		},
	)

	RuleFlagsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapguard_rule_flags_total",
			Help: "Total number of times each rule fired",
		},
		[]string{"rule"},
	)

	WarmupRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tapguard_warmup_records_total",
			Help: "Total number of on-card records replayed into the rule engine",
		},
	)

	// Card Storage Metrics
	CardBlockOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapguard_card_block_ops_total",
			Help: "Total number of block reads and writes after retries",
		},
		[]string{"op", "result"}, // op: "read", "write"
	)

	CardBlockRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapguard_card_block_retries_total",
			Help: "Total number of extra block access attempts",
		},
		[]string{"op"},
	)

	CardBlockOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tapguard_card_block_op_duration_seconds",
			Help:    "Duration of block accesses including retries",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"op"},
	)

	CardSlotsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapguard_card_slots_skipped_total",
			Help: "Total number of ring slots skipped while reading recent records",
		},
		[]string{"reason"}, // "corrupt", "blank", "unreadable"
	)

	CardHeaderWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapguard_card_header_writes_total",
			Help: "Total number of header block writes",
		},
		[]string{"result"},
	)

	CardAppendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapguard_card_appends_total",
			Help: "Total number of ring buffer appends",
		},
		[]string{"result"},
	)

	CardRecoveredAppendsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tapguard_card_recovered_appends_total",
			Help: "Total number of appends found past a stale header and rolled forward",
		},
	)

	// Reader Metrics
	CardDetectTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapguard_card_detect_total",
			Help: "Total number of card presence waits by result",
		},
		[]string{"result"}, // "ok", "timeout", "canceled", "error"
	)

	ReaderBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tapguard_reader_breaker_state",
			Help: "Reader circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	ReaderBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapguard_reader_breaker_transitions_total",
			Help: "Total number of reader circuit breaker state transitions",
		},
		[]string{"from", "to"},
	)

	// Terminal Metrics
	PurchasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapguard_purchases_total",
			Help: "Total number of purchases processed by outcome",
		},
		[]string{"outcome"}, // "approved", "flagged", "append_failed", "no_card", "error"
	)

	PurchaseQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tapguard_purchase_queue_depth",
			Help: "Number of purchases waiting for the card worker",
		},
	)

	JournalAppendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapguard_journal_appends_total",
			Help: "Total number of journal writes",
		},
		[]string{"result"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapguard_http_requests_total",
			Help: "Total number of admin API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tapguard_http_request_duration_seconds",
			Help:    "Duration of admin API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tapguard_http_requests_in_flight",
			Help: "Number of admin API requests being served",
		},
	)
)

// RecordEvaluation records one rule engine decision. rules lists the rule
// types that fired.
func RecordEvaluation(rules []string, duration time.Duration) {
	outcome := "clean"
	if len(rules) > 0 {
		outcome = "flagged"
	}
	EvaluationsTotal.WithLabelValues(outcome).Inc()
	EvaluationDuration.Observe(duration.Seconds())
	for _, r := range rules {
		RuleFlagsTotal.WithLabelValues(r).Inc()
	}
}

// RecordWarmup records replayed history records.
func RecordWarmup(records int) {
	WarmupRecordsTotal.Add(float64(records))
}

// RecordBlockOp records a block access that took attempts tries.
func RecordBlockOp(op string, attempts int, duration time.Duration, err error) {
	CardBlockOpsTotal.WithLabelValues(op, resultLabel(err)).Inc()
	CardBlockOpDuration.WithLabelValues(op).Observe(duration.Seconds())
	if attempts > 1 {
		CardBlockRetriesTotal.WithLabelValues(op).Add(float64(attempts - 1))
	}
}

// RecordSlotsSkipped records ring slots that a read treated as absent.
func RecordSlotsSkipped(corrupt, blank, unreadable int) {
	if corrupt > 0 {
		CardSlotsSkippedTotal.WithLabelValues("corrupt").Add(float64(corrupt))
	}
	if blank > 0 {
		CardSlotsSkippedTotal.WithLabelValues("blank").Add(float64(blank))
	}
	if unreadable > 0 {
		CardSlotsSkippedTotal.WithLabelValues("unreadable").Add(float64(unreadable))
	}
}

// RecordHeaderWrite records a header block write.
func RecordHeaderWrite(err error) {
	CardHeaderWritesTotal.WithLabelValues(resultLabel(err)).Inc()
}

// RecordAppend records a ring buffer append.
func RecordAppend(err error) {
	CardAppendsTotal.WithLabelValues(resultLabel(err)).Inc()
}

// RecordRecoveredAppends records appends rolled forward past a stale header.
func RecordRecoveredAppends(n int) {
	if n > 0 {
		CardRecoveredAppendsTotal.Add(float64(n))
	}
}

// RecordCardDetect records the result of waiting for a card.
func RecordCardDetect(result string) {
	CardDetectTotal.WithLabelValues(result).Inc()
}

// RecordBreakerTransition records a reader circuit breaker state change.
// state is the numeric value of the new state.
func RecordBreakerTransition(from, to string, state int) {
	ReaderBreakerTransitions.WithLabelValues(from, to).Inc()
	ReaderBreakerState.Set(float64(state))
}

// RecordPurchase records the outcome of a terminal purchase.
func RecordPurchase(outcome string) {
	PurchasesTotal.WithLabelValues(outcome).Inc()
}

// SetQueueDepth sets the number of purchases waiting for the card worker.
func SetQueueDepth(n int) {
	PurchaseQueueDepth.Set(float64(n))
}

// RecordJournalAppend records a journal write.
func RecordJournalAppend(err error) {
	JournalAppendsTotal.WithLabelValues(resultLabel(err)).Inc()
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

func resultLabel(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
