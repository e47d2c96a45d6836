// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package detection

import (
	"errors"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/tomtom215/tapguard/internal/geo"
)

// ErrInvalidConfig is wrapped by every rule constructor and Configure call
// that rejects its parameters.
var ErrInvalidConfig = errors.New("invalid rule configuration")

// RuleType identifies the type of detection rule. Its value doubles as the
// reason tag reported when the rule fires (travel appends the speed).
type RuleType string

const (
	// RuleTypeMerchantWindow counts distinct cards per merchant per bucket.
	RuleTypeMerchantWindow RuleType = "merchant_window"

	// RuleTypeCardWindow counts distinct merchants per card per bucket.
	RuleTypeCardWindow RuleType = "card_window"

	// RuleTypeAmountCap flags amounts at or above a fixed cap.
	RuleTypeAmountCap RuleType = "amount_cap"

	// RuleTypeCardEWMA flags statistically surprising amounts for a card.
	RuleTypeCardEWMA RuleType = "card_ewma"

	// RuleTypeImpossibleTravel flags implausible movement between taps.
	RuleTypeImpossibleTravel RuleType = "impossible_travel"
)

// RuleOrder is the fixed evaluation order. Reason lists follow it.
var RuleOrder = []RuleType{
	RuleTypeMerchantWindow,
	RuleTypeCardWindow,
	RuleTypeAmountCap,
	RuleTypeCardEWMA,
	RuleTypeImpossibleTravel,
}

// WindowConfig configures a sliding bucket window rule.
type WindowConfig struct {
	// Threshold is the distinct counterpart count at which the rule fires.
	Threshold int `json:"threshold"`

	// WindowSeconds is the bucket width.
	WindowSeconds int64 `json:"window_seconds"`

	// KeepWindows is how many windows behind the current bucket are retained.
	KeepWindows int `json:"keep_windows"`
}

// DefaultMerchantWindowConfig returns the terminal defaults: 6 cards in 30s.
func DefaultMerchantWindowConfig() WindowConfig {
	return WindowConfig{
		Threshold:     6,
		WindowSeconds: 30,
		KeepWindows:   10,
	}
}

// DefaultCardWindowConfig returns the terminal defaults: 3 merchants in 30s.
func DefaultCardWindowConfig() WindowConfig {
	return WindowConfig{
		Threshold:     3,
		WindowSeconds: 30,
		KeepWindows:   10,
	}
}

// AmountCapConfig configures the amount cap rule.
type AmountCapConfig struct {
	// Cap is in currency units, the same unit as Transaction.Amount.
	Cap decimal.Decimal `json:"cap"`
}

// DefaultAmountCapConfig returns a 1500 currency unit cap.
func DefaultAmountCapConfig() AmountCapConfig {
	return AmountCapConfig{Cap: decimal.NewFromInt(1500)}
}

// CardEWMAConfig configures the per-card amount anomaly rule.
type CardEWMAConfig struct {
	// Alpha is the weight of the newest observation, in (0, 1].
	Alpha float64 `json:"alpha"`

	// K is the z-score at which the rule fires.
	K float64 `json:"k"`

	// Initial is the number of observations per card before the rule may fire.
	Initial int `json:"initial"`

	// MinGate is the smallest amount that may fire, in currency units.
	// Zero or negative disables the gate.
	MinGate float64 `json:"min_gate"`
}

// DefaultCardEWMAConfig returns the tuned terminal defaults.
func DefaultCardEWMAConfig() CardEWMAConfig {
	return CardEWMAConfig{
		Alpha:   0.2,
		K:       5.25,
		Initial: 10,
		MinGate: 850,
	}
}

// ImpossibleTravelConfig configures the impossible travel rule.
type ImpossibleTravelConfig struct {
	// MaxSpeedKmh is the highest plausible speed between two taps.
	MaxSpeedKmh float64 `json:"vmax_kmh"`

	// MinDistanceKm is the distance below which movement is always local.
	MinDistanceKm float64 `json:"min_km"`

	// MinGapSeconds is the time delta at or below which taps are treated as
	// a double tap or clock jitter.
	MinGapSeconds int64 `json:"min_gap_seconds"`
}

// DefaultImpossibleTravelConfig returns the tuned terminal defaults.
func DefaultImpossibleTravelConfig() ImpossibleTravelConfig {
	return ImpossibleTravelConfig{
		MaxSpeedKmh:   600,
		MinDistanceKm: 150,
		MinGapSeconds: 60,
	}
}

// Transaction is one purchase as seen by the rules. It is not modified by
// evaluation.
type Transaction struct {
	// Timestamp is seconds since the Unix epoch.
	Timestamp  int64           `json:"timestamp"`
	MerchantID uint32          `json:"merchant_id"`
	CardID     string          `json:"card_id"`
	Amount     decimal.Decimal `json:"amount"`
	Zip        string          `json:"zip,omitempty"`
	// Coords, when set, wins over Zip for location.
	Coords *geo.Point `json:"coords,omitempty"`
}

// HistoryRecord is a past transaction recovered from the card. It carries no
// location.
type HistoryRecord struct {
	Timestamp  int64
	MerchantID uint32
	Amount     decimal.Decimal
}

// Verdict is the outcome of one rule for one transaction.
type Verdict struct {
	Rule RuleType `json:"rule"`
	Flag bool     `json:"flag"`
	// Reason is the reason tag when Flag is set.
	Reason string `json:"reason,omitempty"`
	// Disabled is set when the rule ran but its flag was masked.
	Disabled bool `json:"disabled,omitempty"`
	// Details is the rule's diagnostic: WindowInfo, EWMAInfo or TravelInfo,
	// or nil for the amount cap.
	Details any `json:"details,omitempty"`
}

// Decision is the combined outcome of all rules for one transaction.
type Decision struct {
	Flagged  bool      `json:"flagged"`
	Reasons  []string  `json:"reasons"`
	Verdicts []Verdict `json:"verdicts"`
}

// Detector is implemented by every rule.
type Detector interface {
	// Type returns the rule type this detector handles.
	Type() RuleType

	// Observe advances the rule's state with tx and returns its verdict.
	// It never fails.
	Observe(tx *Transaction) Verdict

	// Configure replaces the rule configuration. Rules whose state depends
	// on the configuration start over.
	Configure(config json.RawMessage) error

	// Enabled returns whether the detector's flag counts.
	Enabled() bool

	// SetEnabled enables or disables the detector's flag. A disabled
	// detector still observes every transaction.
	SetEnabled(enabled bool)
}
