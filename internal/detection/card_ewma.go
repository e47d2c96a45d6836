// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package detection

import (
	"fmt"
	"math"

	"github.com/goccy/go-json"
)

const (
	// minLogAmount floors amounts before the log transform.
	minLogAmount = 0.01

	// sigmaEpsilon is the standard deviation below which a card is treated
	// as having no spread; such a card never flags.
	sigmaEpsilon = 1e-8
)

// EWMAInfo is the diagnostic of the card EWMA rule.
type EWMAInfo struct {
	Z         float64 `json:"z"`
	LogAmount float64 `json:"log_amount"`
	// Seen is the number of observations before this one.
	Seen      int  `json:"seen"`
	WarmingUp bool `json:"warming_up,omitempty"`
}

// ewmaState is the running estimate for one card.
type ewmaState struct {
	mu   float64 // EWMA of log(amount)
	mu2  float64 // EWMA of log(amount)^2
	seen int
}

// CardEWMA flags amounts that are statistically surprising for the card.
// It tracks exponentially weighted first and second moments of log(amount)
// per card and compares each new amount against the estimate from before it.
type CardEWMA struct {
	config  CardEWMAConfig
	cards   map[string]*ewmaState
	enabled bool
}

// NewCardEWMA creates a card EWMA rule.
func NewCardEWMA(config CardEWMAConfig) (*CardEWMA, error) {
	if err := validateEWMAConfig(config); err != nil {
		return nil, err
	}
	return &CardEWMA{
		config:  config,
		cards:   make(map[string]*ewmaState),
		enabled: true,
	}, nil
}

func validateEWMAConfig(c CardEWMAConfig) error {
	if c.Alpha <= 0 || c.Alpha > 1 {
		return fmt.Errorf("%w: alpha must be in (0, 1]", ErrInvalidConfig)
	}
	if c.K <= 0 {
		return fmt.Errorf("%w: k must be positive", ErrInvalidConfig)
	}
	if c.Initial < 0 {
		return fmt.Errorf("%w: initial cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// Update folds amount (currency units) into cardID's estimate and returns
// whether it is anomalous. The z-score is computed against the estimate
// before this amount is folded in.
func (e *CardEWMA) Update(cardID string, amount float64) (bool, EWMAInfo) {
	x := math.Log(math.Max(amount, minLogAmount))
	st := e.entry(cardID)
	info := EWMAInfo{LogAmount: x, Seen: st.seen}

	if st.seen == 0 {
		st.mu = x
		st.mu2 = x * x
		st.seen = 1
		info.WarmingUp = e.config.Initial > 0
		return false, info
	}

	if st.seen < e.config.Initial {
		info.WarmingUp = true
		e.fold(st, x)
		return false, info
	}

	variance := math.Max(st.mu2-st.mu*st.mu, 0)
	if sigma := math.Sqrt(variance); sigma > sigmaEpsilon {
		info.Z = (x - st.mu) / sigma
	}
	flag := info.Z >= e.config.K && (e.config.MinGate <= 0 || amount >= e.config.MinGate)

	e.fold(st, x)
	return flag, info
}

func (e *CardEWMA) fold(st *ewmaState, x float64) {
	a := e.config.Alpha
	st.mu = a*x + (1-a)*st.mu
	st.mu2 = a*x*x + (1-a)*st.mu2
	st.seen++
}

// entry returns the card's state, creating it on first use.
func (e *CardEWMA) entry(cardID string) *ewmaState {
	st, ok := e.cards[cardID]
	if !ok {
		st = &ewmaState{}
		e.cards[cardID] = st
	}
	return st
}

// Seen returns how many amounts have been observed for cardID.
func (e *CardEWMA) Seen(cardID string) int {
	if st, ok := e.cards[cardID]; ok {
		return st.seen
	}
	return 0
}

// Cards returns the number of cards with state.
func (e *CardEWMA) Cards() int {
	return len(e.cards)
}

// Type returns the rule type.
func (e *CardEWMA) Type() RuleType {
	return RuleTypeCardEWMA
}

// Observe updates the rule with tx.
func (e *CardEWMA) Observe(tx *Transaction) Verdict {
	flag, info := e.Update(tx.CardID, tx.Amount.InexactFloat64())
	v := Verdict{Rule: RuleTypeCardEWMA, Flag: flag, Details: info}
	if flag {
		v.Reason = string(RuleTypeCardEWMA)
	}
	return v
}

// Configure updates the detector configuration. Existing card estimates are
// kept; only Alpha, K, Initial and MinGate change.
func (e *CardEWMA) Configure(config json.RawMessage) error {
	newConfig := e.config
	if err := json.Unmarshal(config, &newConfig); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := validateEWMAConfig(newConfig); err != nil {
		return err
	}
	e.config = newConfig
	return nil
}

// Enabled returns whether this detector is enabled.
func (e *CardEWMA) Enabled() bool { return e.enabled }

// SetEnabled enables or disables the detector.
func (e *CardEWMA) SetEnabled(enabled bool) { e.enabled = enabled }

// Config returns the current configuration.
func (e *CardEWMA) Config() CardEWMAConfig { return e.config }
