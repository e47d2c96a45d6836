// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package card

import "errors"

var (
	// ErrCommunication means a block could not be authenticated, read or
	// written within the retry budget. Callers decide whether to abort the
	// session or ask for a re-tap.
	ErrCommunication = errors.New("card communication failure")

	// ErrCorruptBlock means a block failed its checksum or carries values
	// outside their valid range.
	ErrCorruptBlock = errors.New("corrupt block")

	// ErrBadMagic means the header block does not start with Magic.
	ErrBadMagic = errors.New("header magic mismatch")

	// ErrAmountRange means an amount does not fit the signed 32-bit minor
	// unit field of a record.
	ErrAmountRange = errors.New("amount out of record range")

	// ErrProtectedBlock means a write targeted the manufacturer block or a
	// sector trailer.
	ErrProtectedBlock = errors.New("block is not writable")
)
