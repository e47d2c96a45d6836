// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package card

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tomtom215/tapguard/internal/detection"
)

var hundred = decimal.NewFromInt(100)

// CentsFromAmount converts a currency amount into record minor units,
// rounding half away from zero.
func CentsFromAmount(amount decimal.Decimal) (int32, error) {
	cents := amount.Mul(hundred).Round(0)
	if cents.GreaterThan(decimal.NewFromInt(math.MaxInt32)) || cents.LessThan(decimal.NewFromInt(math.MinInt32)) {
		return 0, fmt.Errorf("%w: %s", ErrAmountRange, amount)
	}
	return int32(cents.IntPart()), nil
}

// AmountFromCents converts record minor units into a currency amount.
func AmountFromCents(cents int32) decimal.Decimal {
	return decimal.New(int64(cents), -2)
}

// EncodeZip packs a ZIP code into 16 bits. Non-digits are dropped, the
// first five digits are kept and the value is clamped to 65535. An empty
// or digitless ZIP encodes as 0.
func EncodeZip(zip string) uint16 {
	var digits strings.Builder
	for _, r := range zip {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
			if digits.Len() == 5 {
				break
			}
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return uint16(min(n, math.MaxUint16))
}

// DecodeZip unpacks a ZIP code, zero-filled to five digits. 0 decodes as "".
func DecodeZip(z uint16) string {
	if z == 0 {
		return ""
	}
	return fmt.Sprintf("%05d", z)
}

// MerchantField truncates a merchant id to the 16-bit record field.
func MerchantField(id uint32) uint16 {
	return uint16(id & 0xFFFF)
}

// NewTxRecord packs an evaluated transaction into a record.
func NewTxRecord(tx *detection.Transaction, flagged bool) (TxRecord, error) {
	cents, err := CentsFromAmount(tx.Amount)
	if err != nil {
		return TxRecord{}, err
	}
	r := TxRecord{
		Timestamp:   uint32(tx.Timestamp),
		AmountCents: cents,
		MerchantID:  MerchantField(tx.MerchantID),
		Zip:         EncodeZip(tx.Zip),
	}
	if flagged {
		r.Flags |= FlagAnyRule
	}
	return r, nil
}

// HistoryRecord converts a record into replayable rule history.
func (r TxRecord) HistoryRecord() detection.HistoryRecord {
	return detection.HistoryRecord{
		Timestamp:  int64(r.Timestamp),
		MerchantID: uint32(r.MerchantID),
		Amount:     AmountFromCents(r.AmountCents),
	}
}
