// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package main

import (
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	samples := make([]time.Duration, 100)
	for i := range samples {
		samples[i] = time.Duration(i+1) * time.Microsecond
	}

	tests := []struct {
		p    int
		want time.Duration
	}{
		{50, 50 * time.Microsecond},
		{95, 95 * time.Microsecond},
		{99, 99 * time.Microsecond},
		{100, 100 * time.Microsecond},
		{0, 1 * time.Microsecond},
	}
	for _, tt := range tests {
		if got := percentile(samples, tt.p); got != tt.want {
			t.Errorf("percentile(%d) = %s, want %s", tt.p, got, tt.want)
		}
	}

	if got := percentile(nil, 50); got != 0 {
		t.Errorf("percentile(nil) = %s, want 0", got)
	}
	if got := percentile([]time.Duration{7}, 99); got != 7 {
		t.Errorf("percentile(single) = %s, want 7ns", got)
	}
}

func TestRunBench(t *testing.T) {
	cfg := loadTestConfig(t)

	res, err := runBench(cfg, 200)
	if err != nil {
		t.Fatalf("runBench() error = %v", err)
	}
	if res.Iterations != 200 {
		t.Errorf("Iterations = %d, want 200", res.Iterations)
	}
	if res.P50 > res.P95 || res.P95 > res.P99 {
		t.Errorf("percentiles not ordered: P50=%s P95=%s P99=%s", res.P50, res.P95, res.P99)
	}
	if res.Total <= 0 {
		t.Errorf("Total = %s, want > 0", res.Total)
	}
}
