// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package card

import (
	"bytes"
	"errors"
	"testing"
)

func TestChecksum(t *testing.T) {
	b := make([]byte, 16)
	for i := 0; i < 14; i++ {
		b[i] = 0xFF
	}
	// 14 * 255 = 3570
	if got := Checksum(b); got != 3570 {
		t.Errorf("Checksum = %d, want 3570", got)
	}
	b[14], b[15] = 0xAA, 0xBB
	if got := Checksum(b); got != 3570 {
		t.Errorf("Checksum must ignore bytes 14-15, got %d", got)
	}
}

func TestHeader_RoundTrip(t *testing.T) {
	tests := []Header{
		{Version: 1},
		{Version: 1, WriteIndex: 43, TotalCount: 65535, LastTimestamp: 0xFFFFFFFF},
		{Version: 7, WriteIndex: 12, TotalCount: 300, LastTimestamp: 1_700_000_000},
	}
	for _, h := range tests {
		b := PackHeader(h)
		if !bytes.Equal(b[0:4], Magic[:]) {
			t.Fatalf("magic = %q", b[0:4])
		}
		if b[12] != 0 || b[13] != 0 {
			t.Errorf("reserved bytes = %x %x, want zero", b[12], b[13])
		}
		got, err := UnpackHeader(b)
		if err != nil {
			t.Fatalf("UnpackHeader(%+v): %v", h, err)
		}
		if got != h {
			t.Errorf("round trip = %+v, want %+v", got, h)
		}
	}
}

func TestHeader_Layout(t *testing.T) {
	b := PackHeader(Header{Version: 1, WriteIndex: 5, TotalCount: 0x0102, LastTimestamp: 0x0A0B0C0D})
	want := []byte{'T', 'G', 'R', 'D', 1, 5, 0x01, 0x02, 0x0A, 0x0B, 0x0C, 0x0D, 0, 0}
	if !bytes.Equal(b[:14], want) {
		t.Errorf("payload = %x, want %x", b[:14], want)
	}
	sum := uint16(b[14])<<8 | uint16(b[15])
	if sum != Checksum(b) {
		t.Errorf("stored checksum %04x, want %04x", sum, Checksum(b))
	}
}

func TestUnpackHeader_Invalid(t *testing.T) {
	valid := PackHeader(Header{Version: 1, WriteIndex: 3, TotalCount: 3})

	badMagic := bytes.Clone(valid)
	badMagic[0] = 'X'

	badSum := bytes.Clone(valid)
	badSum[6] ^= 0x01

	badIndex := PackHeader(Header{Version: 1, WriteIndex: 44})

	tests := []struct {
		name string
		b    []byte
		want error
	}{
		{"zeroed", make([]byte, 16), ErrBadMagic},
		{"short", valid[:10], ErrBadMagic},
		{"magic", badMagic, ErrBadMagic},
		{"checksum", badSum, ErrCorruptBlock},
		{"write index out of range", badIndex, ErrCorruptBlock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := UnpackHeader(tt.b); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRecord_RoundTrip(t *testing.T) {
	tests := []TxRecord{
		{},
		{Timestamp: 1_700_000_000, AmountCents: 1234, MerchantID: 1234, Zip: 10001, Flags: FlagAnyRule},
		{Timestamp: 0xFFFFFFFF, AmountCents: -2147483648, MerchantID: 65535, Zip: 65535, Flags: 0xFF},
		{Timestamp: 1, AmountCents: 2147483647, MerchantID: 1, Zip: 7302},
		{Timestamp: 42, AmountCents: -500},
	}
	for _, r := range tests {
		got, err := UnpackRecord(PackRecord(r))
		if err != nil {
			t.Fatalf("UnpackRecord(%+v): %v", r, err)
		}
		if got != r {
			t.Errorf("round trip = %+v, want %+v", got, r)
		}
	}
}

func TestRecord_SingleByteFlipIsCorrupt(t *testing.T) {
	b := PackRecord(TxRecord{Timestamp: 1_700_000_123, AmountCents: 98765, MerchantID: 42, Zip: 65535, Flags: 1})
	for i := 0; i < len(b); i++ {
		for _, mask := range []byte{0x01, 0x80, 0xFF} {
			flipped := bytes.Clone(b)
			flipped[i] ^= mask
			if _, err := UnpackRecord(flipped); !errors.Is(err, ErrCorruptBlock) {
				t.Errorf("byte %d ^ %02x: err = %v, want ErrCorruptBlock", i, mask, err)
			}
		}
	}
}

func TestUnpackRecord_WrongLength(t *testing.T) {
	if _, err := UnpackRecord(make([]byte, 15)); !errors.Is(err, ErrCorruptBlock) {
		t.Errorf("err = %v, want ErrCorruptBlock", err)
	}
}

func TestIsBlank(t *testing.T) {
	if !IsBlank(make([]byte, 16)) {
		t.Error("zeroed block should be blank")
	}
	if IsBlank(PackRecord(TxRecord{Timestamp: 1})) {
		t.Error("packed record should not be blank")
	}
}

func TestTxRecord_Flagged(t *testing.T) {
	if (TxRecord{}).Flagged() {
		t.Error("zero flags should not be flagged")
	}
	if !(TxRecord{Flags: FlagAnyRule}).Flagged() {
		t.Error("FlagAnyRule should be flagged")
	}
}
