// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package card

import (
	"testing"

	"github.com/tomtom215/tapguard/internal/nfc"
)

func TestDataBlocks(t *testing.T) {
	blocks := DataBlocks()
	if len(blocks) != Capacity {
		t.Fatalf("len(DataBlocks()) = %d, want %d", len(blocks), Capacity)
	}
	if blocks[0] != 5 || blocks[len(blocks)-1] != 62 {
		t.Errorf("ring spans %d..%d, want 5..62", blocks[0], blocks[len(blocks)-1])
	}
	seen := make(map[byte]bool)
	for _, b := range blocks {
		if nfc.IsTrailer(b) {
			t.Errorf("block %d is a sector trailer", b)
		}
		if b == HeaderBlock {
			t.Error("header block in ring")
		}
		if seen[b] {
			t.Errorf("block %d repeated", b)
		}
		seen[b] = true
	}

	blocks[0] = 0
	if DataBlocks()[0] != 5 {
		t.Error("DataBlocks must return a copy")
	}
}

func TestRingBlock(t *testing.T) {
	tests := []struct {
		slot    int
		want    byte
		wantErr bool
	}{
		{slot: 0, want: 5},
		{slot: 1, want: 6},
		{slot: 2, want: 8},
		{slot: 43, want: 62},
		{slot: -1, wantErr: true},
		{slot: 44, wantErr: true},
	}
	for _, tt := range tests {
		got, err := RingBlock(tt.slot)
		if (err != nil) != tt.wantErr {
			t.Errorf("RingBlock(%d) err = %v, wantErr %v", tt.slot, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("RingBlock(%d) = %d, want %d", tt.slot, got, tt.want)
		}
	}
}

func TestSlotAt(t *testing.T) {
	tests := []struct {
		writeIndex, back, want int
	}{
		{writeIndex: 5, back: 1, want: 4},
		{writeIndex: 0, back: 1, want: 43},
		{writeIndex: 3, back: 5, want: 42},
		{writeIndex: 10, back: 44, want: 10},
	}
	for _, tt := range tests {
		if got := slotAt(tt.writeIndex, tt.back); got != tt.want {
			t.Errorf("slotAt(%d, %d) = %d, want %d", tt.writeIndex, tt.back, got, tt.want)
		}
	}
}
