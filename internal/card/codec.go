// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package card

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tomtom215/tapguard/internal/nfc"
)

// FlagAnyRule is set in TxRecord.Flags when any rule fired.
const FlagAnyRule uint8 = 1 << 0

// Header is the ring buffer header stored in HeaderBlock.
//
//	0-3   magic
//	4     version
//	5     write index
//	6-7   total count (big-endian)
//	8-11  last timestamp (big-endian seconds)
//	12-13 reserved
//	14-15 checksum
type Header struct {
	Version       uint8  `json:"version"`
	WriteIndex    uint8  `json:"write_index"`
	TotalCount    uint16 `json:"total_count"`
	LastTimestamp uint32 `json:"last_timestamp"`
}

// TxRecord is one ring slot.
//
//	0-3   timestamp (big-endian seconds)
//	4-7   amount in minor units (big-endian signed)
//	8-9   merchant id (big-endian)
//	10-11 zip, 0 when absent
//	12    flags
//	13    reserved
//	14-15 checksum
type TxRecord struct {
	Timestamp   uint32 `json:"timestamp"`
	AmountCents int32  `json:"amount_cents"`
	MerchantID  uint16 `json:"merchant_id"`
	Zip         uint16 `json:"zip"`
	Flags       uint8  `json:"flags"`
}

// Flagged reports whether FlagAnyRule is set.
func (r TxRecord) Flagged() bool {
	return r.Flags&FlagAnyRule != 0
}

// Checksum is the sum of the first 14 bytes of a block masked to 16 bits.
func Checksum(block []byte) uint16 {
	var sum uint16
	for _, b := range block[:14] {
		sum += uint16(b)
	}
	return sum
}

func seal(b []byte) {
	binary.BigEndian.PutUint16(b[14:16], Checksum(b))
}

func checkBlock(b []byte) error {
	if len(b) != nfc.BlockSize {
		return fmt.Errorf("%w: %d bytes", ErrCorruptBlock, len(b))
	}
	if got, want := binary.BigEndian.Uint16(b[14:16]), Checksum(b); got != want {
		return fmt.Errorf("%w: checksum %04x, computed %04x", ErrCorruptBlock, got, want)
	}
	return nil
}

// PackHeader encodes h into a block.
func PackHeader(h Header) []byte {
	b := make([]byte, nfc.BlockSize)
	copy(b[0:4], Magic[:])
	b[4] = h.Version
	b[5] = h.WriteIndex
	binary.BigEndian.PutUint16(b[6:8], h.TotalCount)
	binary.BigEndian.PutUint32(b[8:12], h.LastTimestamp)
	seal(b)
	return b
}

// UnpackHeader decodes a header block. It returns ErrBadMagic when the
// block is not a header and ErrCorruptBlock when it fails validation.
func UnpackHeader(b []byte) (Header, error) {
	if len(b) != nfc.BlockSize || !bytes.Equal(b[0:4], Magic[:]) {
		return Header{}, ErrBadMagic
	}
	if err := checkBlock(b); err != nil {
		return Header{}, err
	}
	h := Header{
		Version:       b[4],
		WriteIndex:    b[5],
		TotalCount:    binary.BigEndian.Uint16(b[6:8]),
		LastTimestamp: binary.BigEndian.Uint32(b[8:12]),
	}
	if int(h.WriteIndex) >= Capacity {
		return Header{}, fmt.Errorf("%w: write index %d", ErrCorruptBlock, h.WriteIndex)
	}
	return h, nil
}

// PackRecord encodes r into a block.
func PackRecord(r TxRecord) []byte {
	b := make([]byte, nfc.BlockSize)
	binary.BigEndian.PutUint32(b[0:4], r.Timestamp)
	binary.BigEndian.PutUint32(b[4:8], uint32(r.AmountCents))
	binary.BigEndian.PutUint16(b[8:10], r.MerchantID)
	binary.BigEndian.PutUint16(b[10:12], r.Zip)
	b[12] = r.Flags
	seal(b)
	return b
}

// UnpackRecord decodes a record block. A checksum mismatch returns
// ErrCorruptBlock and no partial record.
func UnpackRecord(b []byte) (TxRecord, error) {
	if err := checkBlock(b); err != nil {
		return TxRecord{}, err
	}
	return TxRecord{
		Timestamp:   binary.BigEndian.Uint32(b[0:4]),
		AmountCents: int32(binary.BigEndian.Uint32(b[4:8])),
		MerchantID:  binary.BigEndian.Uint16(b[8:10]),
		Zip:         binary.BigEndian.Uint16(b[10:12]),
		Flags:       b[12],
	}, nil
}

// IsBlank reports whether b is an all-zero (formatted, never written) block.
// A blank block passes the checksum, so readers test for it separately.
func IsBlank(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
