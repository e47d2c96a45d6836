// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package detection

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// AmountCap flags any amount at or above a fixed cap. It keeps no state.
type AmountCap struct {
	config  AmountCapConfig
	enabled bool
}

// NewAmountCap creates an amount cap rule.
func NewAmountCap(config AmountCapConfig) (*AmountCap, error) {
	if !config.Cap.IsPositive() {
		return nil, fmt.Errorf("%w: cap must be positive", ErrInvalidConfig)
	}
	return &AmountCap{config: config, enabled: true}, nil
}

// Update returns whether amount reaches the cap. Both are in currency units.
func (a *AmountCap) Update(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(a.config.Cap)
}

// Type returns the rule type.
func (a *AmountCap) Type() RuleType {
	return RuleTypeAmountCap
}

// Observe checks tx.Amount against the cap.
func (a *AmountCap) Observe(tx *Transaction) Verdict {
	v := Verdict{Rule: RuleTypeAmountCap, Flag: a.Update(tx.Amount)}
	if v.Flag {
		v.Reason = string(RuleTypeAmountCap)
	}
	return v
}

// Configure updates the detector configuration.
func (a *AmountCap) Configure(config json.RawMessage) error {
	newConfig := a.config
	if err := json.Unmarshal(config, &newConfig); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if !newConfig.Cap.IsPositive() {
		return fmt.Errorf("%w: cap must be positive", ErrInvalidConfig)
	}
	a.config = newConfig
	return nil
}

// Enabled returns whether this detector is enabled.
func (a *AmountCap) Enabled() bool { return a.enabled }

// SetEnabled enables or disables the detector.
func (a *AmountCap) SetEnabled(enabled bool) { a.enabled = enabled }

// Config returns the current configuration.
func (a *AmountCap) Config() AmountCapConfig { return a.config }
