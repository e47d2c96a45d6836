// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package detection

import (
	"errors"
	"math"
	"testing"

	"github.com/goccy/go-json"
)

func newTestEWMA(t *testing.T, cfg CardEWMAConfig) *CardEWMA {
	t.Helper()
	e, err := NewCardEWMA(cfg)
	if err != nil {
		t.Fatalf("NewCardEWMA() error = %v", err)
	}
	return e
}

func TestCardEWMA_WarmupThenScore(t *testing.T) {
	cfg := CardEWMAConfig{Alpha: 0.2, K: 3, Initial: 5}
	e := newTestEWMA(t, cfg)

	history := []float64{20, 25, 18, 40, 22}
	for i, amt := range history {
		flag, info := e.Update("K", amt)
		if flag || info.Z != 0 {
			t.Errorf("warm-up %d: flag=%v z=%g, want false/0", i+1, flag, info.Z)
		}
		if !info.WarmingUp {
			t.Errorf("warm-up %d: WarmingUp not set", i+1)
		}
	}

	// Recompute the estimate from exactly the first five log-amounts.
	mu := math.Log(history[0])
	mu2 := mu * mu
	for _, amt := range history[1:] {
		x := math.Log(amt)
		mu = cfg.Alpha*x + (1-cfg.Alpha)*mu
		mu2 = cfg.Alpha*x*x + (1-cfg.Alpha)*mu2
	}
	x6 := math.Log(900)
	wantZ := (x6 - mu) / math.Sqrt(mu2-mu*mu)

	flag, info := e.Update("K", 900)
	if math.Abs(info.Z-wantZ) > 1e-9 {
		t.Errorf("6th z = %g, want %g", info.Z, wantZ)
	}
	if info.Seen != 5 || info.WarmingUp {
		t.Errorf("6th info = %+v, want seen 5 and not warming up", info)
	}
	if flag != (wantZ >= cfg.K) {
		t.Errorf("6th flag = %v with z %g and k %g", flag, wantZ, cfg.K)
	}
	if !flag {
		t.Error("a 900 spend after ~25 spends should flag")
	}
	if e.Seen("K") != 6 {
		t.Errorf("Seen = %d, want 6", e.Seen("K"))
	}
}

func TestCardEWMA_DegenerateVarianceNeverFlags(t *testing.T) {
	e := newTestEWMA(t, CardEWMAConfig{Alpha: 0.2, K: 0.001, Initial: 2})

	for i := 0; i < 50; i++ {
		flag, info := e.Update("K", 42.5)
		if flag {
			t.Fatalf("update %d flagged with z=%g", i, info.Z)
		}
		if math.Abs(info.Z) > 1e-6 {
			t.Fatalf("update %d: z = %g, want ~0", i, info.Z)
		}
	}
}

func TestCardEWMA_MinGate(t *testing.T) {
	cfg := CardEWMAConfig{Alpha: 0.2, K: 2, Initial: 3, MinGate: 850}
	gated := newTestEWMA(t, cfg)
	cfg.MinGate = 0
	ungated := newTestEWMA(t, cfg)

	for _, amt := range []float64{1, 1.5, 1.2, 0.9} {
		gated.Update("K", amt)
		ungated.Update("K", amt)
	}

	// A 60 spend is wildly out of line for this card but under the gate.
	gFlag, gInfo := gated.Update("K", 60)
	uFlag, uInfo := ungated.Update("K", 60)
	if gInfo.Z != uInfo.Z {
		t.Fatalf("gate changed z: %g vs %g", gInfo.Z, uInfo.Z)
	}
	if gInfo.Z < 2 {
		t.Fatalf("z = %g, expected a large score", gInfo.Z)
	}
	if gFlag {
		t.Error("amount under min_gate should not flag")
	}
	if !uFlag {
		t.Error("without a gate the same amount should flag")
	}
}

func TestCardEWMA_TinyAmountsAreFloored(t *testing.T) {
	e := newTestEWMA(t, DefaultCardEWMAConfig())

	_, zero := e.Update("K", 0)
	_, neg := e.Update("K", -5)
	want := math.Log(0.01)
	if zero.LogAmount != want || neg.LogAmount != want {
		t.Errorf("log amounts = %g, %g, want %g", zero.LogAmount, neg.LogAmount, want)
	}
}

func TestCardEWMA_CardsAreIndependent(t *testing.T) {
	e := newTestEWMA(t, CardEWMAConfig{Alpha: 0.5, K: 1, Initial: 1})

	e.Update("A", 10)
	e.Update("A", 12)
	if _, info := e.Update("B", 1000); info.Seen != 0 || info.Z != 0 {
		t.Errorf("first observation of B = %+v, want fresh state", info)
	}
	if e.Cards() != 2 {
		t.Errorf("Cards() = %d, want 2", e.Cards())
	}
}

func TestCardEWMA_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config CardEWMAConfig
	}{
		{"zero alpha", CardEWMAConfig{Alpha: 0, K: 1}},
		{"alpha above one", CardEWMAConfig{Alpha: 1.5, K: 1}},
		{"zero k", CardEWMAConfig{Alpha: 0.2, K: 0}},
		{"negative initial", CardEWMAConfig{Alpha: 0.2, K: 1, Initial: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCardEWMA(tt.config); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestCardEWMA_ConfigureKeepsState(t *testing.T) {
	e := newTestEWMA(t, DefaultCardEWMAConfig())
	e.Update("K", 10)
	e.Update("K", 11)

	if err := e.Configure(json.RawMessage(`{"k": 3.5}`)); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if e.Config().K != 3.5 || e.Config().Alpha != 0.2 {
		t.Errorf("Config() = %+v", e.Config())
	}
	if e.Seen("K") != 2 {
		t.Errorf("Seen = %d, want 2 after Configure", e.Seen("K"))
	}
	if err := e.Configure(json.RawMessage(`{"alpha": 2}`)); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Configure(alpha 2) error = %v, want ErrInvalidConfig", err)
	}
}
