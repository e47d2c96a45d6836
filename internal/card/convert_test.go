// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package card

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tomtom215/tapguard/internal/detection"
)

func TestCentsFromAmount(t *testing.T) {
	tests := []struct {
		amount  string
		want    int32
		wantErr bool
	}{
		{amount: "12.34", want: 1234},
		{amount: "0", want: 0},
		{amount: "1500", want: 150000},
		{amount: "0.005", want: 1},
		{amount: "-0.005", want: -1},
		{amount: "-19.99", want: -1999},
		{amount: "21474836.47", want: 2147483647},
		{amount: "21474836.48", wantErr: true},
		{amount: "-21474836.49", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			got, err := CentsFromAmount(decimal.RequireFromString(tt.amount))
			if tt.wantErr {
				if !errors.Is(err, ErrAmountRange) {
					t.Errorf("err = %v, want ErrAmountRange", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("CentsFromAmount(%s) = %d, want %d", tt.amount, got, tt.want)
			}
		})
	}
}

func TestAmountFromCents(t *testing.T) {
	if got := AmountFromCents(1234); !got.Equal(decimal.RequireFromString("12.34")) {
		t.Errorf("AmountFromCents(1234) = %s", got)
	}
	if got := AmountFromCents(-5); !got.Equal(decimal.RequireFromString("-0.05")) {
		t.Errorf("AmountFromCents(-5) = %s", got)
	}
}

func TestEncodeZip(t *testing.T) {
	tests := []struct {
		zip  string
		want uint16
	}{
		{"10001", 10001},
		{"07302", 7302},
		{"90001", 65535},
		{"99999", 65535},
		{"ab-123", 123},
		{"123456789", 12345},
		{"90001-1234", 65535},
		{"", 0},
		{"n/a", 0},
	}
	for _, tt := range tests {
		if got := EncodeZip(tt.zip); got != tt.want {
			t.Errorf("EncodeZip(%q) = %d, want %d", tt.zip, got, tt.want)
		}
	}
}

func TestDecodeZip(t *testing.T) {
	tests := []struct {
		z    uint16
		want string
	}{
		{0, ""},
		{7302, "07302"},
		{10001, "10001"},
		{1, "00001"},
	}
	for _, tt := range tests {
		if got := DecodeZip(tt.z); got != tt.want {
			t.Errorf("DecodeZip(%d) = %q, want %q", tt.z, got, tt.want)
		}
	}
}

func TestMerchantField(t *testing.T) {
	if got := MerchantField(1234); got != 1234 {
		t.Errorf("MerchantField(1234) = %d", got)
	}
	if got := MerchantField(0x12345); got != 0x2345 {
		t.Errorf("MerchantField(0x12345) = %#x, want 0x2345", got)
	}
}

func TestNewTxRecord_AndHistory(t *testing.T) {
	tx := &detection.Transaction{
		Timestamp:  1_700_000_000,
		MerchantID: 77,
		CardID:     "deadbeef",
		Amount:     decimal.RequireFromString("49.95"),
		Zip:        "07302",
	}
	rec, err := NewTxRecord(tx, true)
	if err != nil {
		t.Fatalf("NewTxRecord: %v", err)
	}
	want := TxRecord{Timestamp: 1_700_000_000, AmountCents: 4995, MerchantID: 77, Zip: 7302, Flags: FlagAnyRule}
	if rec != want {
		t.Errorf("record = %+v, want %+v", rec, want)
	}

	h := rec.HistoryRecord()
	if h.Timestamp != tx.Timestamp || h.MerchantID != 77 || !h.Amount.Equal(tx.Amount) {
		t.Errorf("history = %+v", h)
	}

	tx.Amount = decimal.RequireFromString("99999999")
	if _, err := NewTxRecord(tx, false); !errors.Is(err, ErrAmountRange) {
		t.Errorf("err = %v, want ErrAmountRange", err)
	}
}
