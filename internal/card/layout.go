// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package card

import (
	"fmt"
	"slices"

	"github.com/tomtom215/tapguard/internal/nfc"
)

const (
	// HeaderBlock holds the ring buffer header.
	HeaderBlock byte = 4

	// HeaderVersion is written into every fresh header.
	HeaderVersion uint8 = 1

	// MaxTotalCount is where Header.TotalCount saturates.
	MaxTotalCount = 65535

	// Capacity is the number of ring slots.
	Capacity = 44

	firstPoolBlock byte = 4
)

// Magic opens every valid header block.
var Magic = [4]byte{'T', 'G', 'R', 'D'}

// poolBlocks are the addressable blocks: 4..63 without sector trailers.
// The first is the header, the rest are ring slots.
var poolBlocks = func() []byte {
	var blocks []byte
	for b := firstPoolBlock; b < nfc.Blocks; b++ {
		if !nfc.IsTrailer(b) {
			blocks = append(blocks, b)
		}
	}
	return blocks
}()

// DataBlocks returns the physical block numbers of the ring slots in slot
// order.
func DataBlocks() []byte {
	return slices.Clone(poolBlocks[1:])
}

// RingBlock maps a ring slot to its physical block.
func RingBlock(slot int) (byte, error) {
	if slot < 0 || slot >= Capacity {
		return 0, fmt.Errorf("ring slot %d out of range [0,%d)", slot, Capacity)
	}
	return poolBlocks[slot+1], nil
}

// slotAt returns the slot n positions before writeIndex, wrapping.
func slotAt(writeIndex, back int) int {
	return ((writeIndex-back)%Capacity + Capacity) % Capacity
}
