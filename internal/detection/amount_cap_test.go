// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package detection

import (
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

func TestAmountCap_Update(t *testing.T) {
	c, err := NewAmountCap(AmountCapConfig{Cap: decimal.NewFromInt(500)})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		amount string
		want   bool
	}{
		{"499.99", false},
		{"500.00", true},
		{"500", true},
		{"10000", true},
		{"0", false},
		{"-20", false},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			if got := c.Update(decimal.RequireFromString(tt.amount)); got != tt.want {
				t.Errorf("Update(%s) = %v, want %v", tt.amount, got, tt.want)
			}
		})
	}
}

func TestNewAmountCap_Invalid(t *testing.T) {
	for _, cap := range []int64{0, -1} {
		if _, err := NewAmountCap(AmountCapConfig{Cap: decimal.NewFromInt(cap)}); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("NewAmountCap(%d) error = %v, want ErrInvalidConfig", cap, err)
		}
	}
}

func TestAmountCap_Configure(t *testing.T) {
	c, _ := NewAmountCap(DefaultAmountCapConfig())

	if err := c.Configure(json.RawMessage(`{"cap": "250.50"}`)); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if !c.Config().Cap.Equal(decimal.RequireFromString("250.5")) {
		t.Errorf("Cap = %s, want 250.5", c.Config().Cap)
	}
	if !c.Update(decimal.RequireFromString("250.50")) {
		t.Error("amount equal to the new cap should flag")
	}

	if err := c.Configure(json.RawMessage(`{"cap": 0}`)); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Configure(cap 0) error = %v, want ErrInvalidConfig", err)
	}
}

func TestAmountCap_Observe(t *testing.T) {
	c, _ := NewAmountCap(DefaultAmountCapConfig())

	v := c.Observe(&Transaction{Amount: decimal.NewFromInt(1500)})
	if !v.Flag || v.Reason != "amount_cap" {
		t.Errorf("verdict = %+v, want amount_cap flag", v)
	}
	if v := c.Observe(&Transaction{Amount: decimal.RequireFromString("1499.99")}); v.Flag || v.Reason != "" {
		t.Errorf("verdict = %+v, want no flag", v)
	}
}
