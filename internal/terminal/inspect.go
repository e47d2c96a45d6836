// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package terminal

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tomtom215/tapguard/internal/card"
	"github.com/tomtom215/tapguard/internal/logging"
	"github.com/tomtom215/tapguard/internal/nfc"
)

// InspectedRecord is a card record in display units.
type InspectedRecord struct {
	Timestamp  uint32          `json:"timestamp"`
	Time       time.Time       `json:"time"`
	Amount     decimal.Decimal `json:"amount"`
	MerchantID uint16          `json:"merchant_id"`
	Zip        string          `json:"zip,omitempty"`
	Flagged    bool            `json:"flagged"`
}

// Inspection is the full history of one card.
type Inspection struct {
	CardID     string            `json:"card_id"`
	Header     card.Header       `json:"header"`
	Records    []InspectedRecord `json:"records"`
	Recovered  int               `json:"recovered"`
	Corrupt    int               `json:"corrupt"`
	Blank      int               `json:"blank"`
	Unreadable int               `json:"unreadable"`
}

// Inspect waits for a card and reads its whole ring, newest first. A card
// without a header gets one.
func (t *Terminal) Inspect(ctx context.Context) (*Inspection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	uid, err := nfc.WaitForCard(ctx, t.reader, t.cfg.Presence)
	if err != nil {
		return nil, err
	}
	res, store, err := t.readHistory(ctx, uid, card.Capacity)
	if err != nil {
		return nil, fmt.Errorf("read card: %w", err)
	}

	in := &Inspection{
		CardID:     uid.String(),
		Header:     res.Header,
		Records:    make([]InspectedRecord, 0, len(res.Records)),
		Recovered:  store.Recovered(),
		Corrupt:    res.Corrupt,
		Blank:      res.Blank,
		Unreadable: res.Unreadable,
	}
	for _, r := range res.Records {
		in.Records = append(in.Records, InspectedRecord{
			Timestamp:  r.Timestamp,
			Time:       time.Unix(int64(r.Timestamp), 0).UTC(),
			Amount:     card.AmountFromCents(r.AmountCents),
			MerchantID: r.MerchantID,
			Zip:        card.DecodeZip(r.Zip),
			Flagged:    r.Flagged(),
		})
	}
	return in, nil
}

// Format waits for a card and clears its ring. The card's replay
// watermark is kept: this process has already observed those records.
func (t *Terminal) Format(ctx context.Context, mode card.FormatMode) (*card.FormatResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	uid, err := nfc.WaitForCard(ctx, t.reader, t.cfg.Presence)
	if err != nil {
		return nil, err
	}
	res, err := t.cardStore(uid).Format(ctx, mode)
	if err != nil {
		return &res, fmt.Errorf("format card: %w", err)
	}
	logging.Info().Str("card", uid.String()).Str("mode", mode.String()).Msg("Card formatted by operator")
	return &res, nil
}
