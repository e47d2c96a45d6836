// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestRecordEvaluation tests decision counting and per-rule flags
func TestRecordEvaluation(t *testing.T) {
	clean := testutil.ToFloat64(EvaluationsTotal.WithLabelValues("clean"))
	flagged := testutil.ToFloat64(EvaluationsTotal.WithLabelValues("flagged"))
	capFlags := testutil.ToFloat64(RuleFlagsTotal.WithLabelValues("amount_cap"))
	ewmaFlags := testutil.ToFloat64(RuleFlagsTotal.WithLabelValues("card_ewma"))

	RecordEvaluation(nil, 40*time.Microsecond)
	RecordEvaluation([]string{"amount_cap", "card_ewma"}, 55*time.Microsecond)
	RecordEvaluation([]string{"amount_cap"}, 30*time.Microsecond)

	if got := testutil.ToFloat64(EvaluationsTotal.WithLabelValues("clean")) - clean; got != 1 {
		t.Errorf("clean evaluations delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(EvaluationsTotal.WithLabelValues("flagged")) - flagged; got != 2 {
		t.Errorf("flagged evaluations delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(RuleFlagsTotal.WithLabelValues("amount_cap")) - capFlags; got != 2 {
		t.Errorf("amount_cap flags delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(RuleFlagsTotal.WithLabelValues("card_ewma")) - ewmaFlags; got != 1 {
		t.Errorf("card_ewma flags delta = %v, want 1", got)
	}
}

// TestRecordBlockOp tests retry accounting
func TestRecordBlockOp(t *testing.T) {
	tests := []struct {
		name        string
		attempts    int
		err         error
		wantResult  string
		wantRetries float64
	}{
		{"first try", 1, nil, ResultOK, 0},
		{"third try", 3, nil, ResultOK, 2},
		{"exhausted", 3, errors.New("auth failed"), ResultError, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops := testutil.ToFloat64(CardBlockOpsTotal.WithLabelValues("read", tt.wantResult))
			retries := testutil.ToFloat64(CardBlockRetriesTotal.WithLabelValues("read"))

			RecordBlockOp("read", tt.attempts, 5*time.Millisecond, tt.err)

			if got := testutil.ToFloat64(CardBlockOpsTotal.WithLabelValues("read", tt.wantResult)) - ops; got != 1 {
				t.Errorf("ops delta = %v, want 1", got)
			}
			if got := testutil.ToFloat64(CardBlockRetriesTotal.WithLabelValues("read")) - retries; got != tt.wantRetries {
				t.Errorf("retries delta = %v, want %v", got, tt.wantRetries)
			}
		})
	}
}

// TestRecordSlotsSkipped tests that only non-zero reasons are counted
func TestRecordSlotsSkipped(t *testing.T) {
	corrupt := testutil.ToFloat64(CardSlotsSkippedTotal.WithLabelValues("corrupt"))
	blank := testutil.ToFloat64(CardSlotsSkippedTotal.WithLabelValues("blank"))

	RecordSlotsSkipped(2, 0, 0)
	RecordSlotsSkipped(0, 3, 0)

	if got := testutil.ToFloat64(CardSlotsSkippedTotal.WithLabelValues("corrupt")) - corrupt; got != 2 {
		t.Errorf("corrupt delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(CardSlotsSkippedTotal.WithLabelValues("blank")) - blank; got != 3 {
		t.Errorf("blank delta = %v, want 3", got)
	}
}

// TestRecordBreakerTransition tests state gauge updates
func TestRecordBreakerTransition(t *testing.T) {
	RecordBreakerTransition("closed", "open", 2)
	if got := testutil.ToFloat64(ReaderBreakerState); got != 2 {
		t.Errorf("breaker state = %v, want 2", got)
	}
	RecordBreakerTransition("open", "half-open", 1)
	RecordBreakerTransition("half-open", "closed", 0)
	if got := testutil.ToFloat64(ReaderBreakerState); got != 0 {
		t.Errorf("breaker state = %v, want 0", got)
	}
}

// TestResultLabels tests the ok/error label helpers
func TestResultLabels(t *testing.T) {
	ok := testutil.ToFloat64(CardHeaderWritesTotal.WithLabelValues(ResultOK))
	failed := testutil.ToFloat64(CardHeaderWritesTotal.WithLabelValues(ResultError))

	RecordHeaderWrite(nil)
	RecordHeaderWrite(errors.New("write failed"))
	RecordHeaderWrite(nil)

	if got := testutil.ToFloat64(CardHeaderWritesTotal.WithLabelValues(ResultOK)) - ok; got != 2 {
		t.Errorf("ok delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(CardHeaderWritesTotal.WithLabelValues(ResultError)) - failed; got != 1 {
		t.Errorf("error delta = %v, want 1", got)
	}
}

// TestTrackActiveRequest tests active request tracking
func TestTrackActiveRequest(t *testing.T) {
	base := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	TrackActiveRequest(true)
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests) - base; got != 1 {
		t.Errorf("in-flight delta = %v, want 1", got)
	}
	TrackActiveRequest(false)
}

// TestConcurrentMetricRecording tests thread-safety of metric recording
func TestConcurrentMetricRecording(t *testing.T) {
	before := testutil.ToFloat64(PurchasesTotal.WithLabelValues("approved"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			RecordPurchase("approved")
			RecordAPIRequest("POST", "/api/v1/purchases", "202", time.Millisecond)
			RecordCardDetect("ok")
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(PurchasesTotal.WithLabelValues("approved")) - before; got != 50 {
		t.Errorf("approved delta = %v, want 50", got)
	}
}
