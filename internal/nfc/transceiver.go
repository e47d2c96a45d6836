// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package nfc

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"time"
)

// BlockSize is the size of a MIFARE Classic data block.
const BlockSize = 16

// Sentinel errors returned by transceivers.
var (
	// ErrNoTag means no tag answered within the detect timeout.
	ErrNoTag = errors.New("no tag in field")

	// ErrNoCard means no stable card was presented before the wait gave up.
	ErrNoCard = errors.New("no card detected")

	// ErrAuth means the tag rejected the key for the block's sector.
	ErrAuth = errors.New("authentication failed")

	// ErrIO means a block transfer failed after authentication.
	ErrIO = errors.New("block transfer failed")

	// ErrReaderUnavailable means the reader is failing persistently and
	// requests are being rejected without reaching it.
	ErrReaderUnavailable = errors.New("reader unavailable")
)

// UID is the unique identifier of a tag.
type UID []byte

// String returns the lowercase hex form used as the card id.
func (u UID) String() string {
	return hex.EncodeToString(u)
}

// Equal reports whether two UIDs are identical.
func (u UID) Equal(other UID) bool {
	return len(u) > 0 && bytes.Equal(u, other)
}

// Key is a 6-byte MIFARE sector key.
type Key [6]byte

// DefaultKey is the factory transport key.
var DefaultKey = Key{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// Transceiver is the contactless reader. Implementations talk to a single
// tag at a time and are not required to be safe for concurrent use.
type Transceiver interface {
	// DetectTag waits up to timeout for a tag and returns its UID, or
	// ErrNoTag.
	DetectTag(ctx context.Context, timeout time.Duration) (UID, error)

	// Authenticate unlocks the sector holding block with key A.
	Authenticate(ctx context.Context, uid UID, block byte, key Key) error

	// ReadBlock reads one 16-byte block of an authenticated sector.
	ReadBlock(ctx context.Context, uid UID, block byte) ([]byte, error)

	// WriteBlock writes one 16-byte block of an authenticated sector.
	WriteBlock(ctx context.Context, uid UID, block byte, data []byte) error
}

// IsTrailer reports whether block is a sector trailer holding keys and
// access bits. Trailers are every fourth block of the 1K layout.
func IsTrailer(block byte) bool {
	return (block+1)%4 == 0
}

// SectorTrailer returns the trailer block of the sector holding block.
func SectorTrailer(block byte) byte {
	return block | 3
}
