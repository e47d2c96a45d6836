// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package detection

import (
	"fmt"
	"slices"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tapguard/internal/geo"
	"github.com/tomtom215/tapguard/internal/logging"
)

// Engine runs every rule on every transaction and combines their verdicts.
//
// Engine is not safe for concurrent use. One goroutine owns it.
type Engine struct {
	travel *ImpossibleTravel

	// detectors holds every rule in RuleOrder.
	detectors []Detector
	metrics   EngineMetrics
}

// EngineMetrics tracks detection engine activity.
type EngineMetrics struct {
	TransactionsEvaluated int64
	TransactionsFlagged   int64
	RecordsReplayed       int64
	ProcessingTimeNs      int64
	LastEvaluatedAt       time.Time
	FlagsByRule           map[RuleType]int64
}

// EngineConfig configures every rule of the engine.
type EngineConfig struct {
	MerchantWindow   WindowConfig           `json:"merchant_window"`
	CardWindow       WindowConfig           `json:"card_window"`
	AmountCap        AmountCapConfig        `json:"amount_cap"`
	CardEWMA         CardEWMAConfig         `json:"card_ewma"`
	ImpossibleTravel ImpossibleTravelConfig `json:"impossible_travel"`

	// Disabled lists rules whose flags are masked. They still observe every
	// transaction.
	Disabled []RuleType `json:"disabled,omitempty"`
}

// DefaultEngineConfig returns the tuned terminal defaults with all rules on.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MerchantWindow:   DefaultMerchantWindowConfig(),
		CardWindow:       DefaultCardWindowConfig(),
		AmountCap:        DefaultAmountCapConfig(),
		CardEWMA:         DefaultCardEWMAConfig(),
		ImpossibleTravel: DefaultImpossibleTravelConfig(),
	}
}

// NewEngine builds every rule from config. Any invalid rule parameter fails
// construction.
func NewEngine(config EngineConfig, resolver geo.Resolver) (*Engine, error) {
	mw, err := NewMerchantWindow(config.MerchantWindow)
	if err != nil {
		return nil, fmt.Errorf("merchant_window: %w", err)
	}
	cw, err := NewCardWindow(config.CardWindow)
	if err != nil {
		return nil, fmt.Errorf("card_window: %w", err)
	}
	ac, err := NewAmountCap(config.AmountCap)
	if err != nil {
		return nil, fmt.Errorf("amount_cap: %w", err)
	}
	ew, err := NewCardEWMA(config.CardEWMA)
	if err != nil {
		return nil, fmt.Errorf("card_ewma: %w", err)
	}
	it, err := NewImpossibleTravel(config.ImpossibleTravel, resolver)
	if err != nil {
		return nil, fmt.Errorf("impossible_travel: %w", err)
	}

	e := &Engine{
		travel:    it,
		detectors: []Detector{mw, cw, ac, ew, it},
		metrics:   EngineMetrics{FlagsByRule: make(map[RuleType]int64)},
	}

	for _, rt := range config.Disabled {
		if err := e.SetDetectorEnabled(rt, false); err != nil {
			return nil, err
		}
	}

	for _, d := range e.detectors {
		logging.Debug().
			Str("detector", string(d.Type())).
			Bool("enabled", d.Enabled()).
			Msg("Registered detector")
	}
	return e, nil
}

// Evaluate runs every rule on tx in RuleOrder and returns the combined
// decision. No rule is skipped, whatever the others return.
func (e *Engine) Evaluate(tx *Transaction) Decision {
	start := time.Now()

	d := Decision{
		Reasons:  []string{},
		Verdicts: make([]Verdict, 0, len(e.detectors)),
	}
	for _, det := range e.detectors {
		v := det.Observe(tx)
		if !det.Enabled() {
			v.Disabled = true
			v.Flag = false
			v.Reason = ""
		}
		if v.Flag {
			d.Flagged = true
			d.Reasons = append(d.Reasons, v.Reason)
			e.metrics.FlagsByRule[v.Rule]++
		}
		d.Verdicts = append(d.Verdicts, v)
	}

	e.metrics.TransactionsEvaluated++
	if d.Flagged {
		e.metrics.TransactionsFlagged++
	}
	e.metrics.ProcessingTimeNs += time.Since(start).Nanoseconds()
	e.metrics.LastEvaluatedAt = start
	return d
}

// Warmup replays records, oldest first, through every rule to rebuild the
// card's state. Verdicts are discarded. Replayed records carry no location,
// so the card's travel state ends up unlocated. It returns the number of
// records replayed.
func (e *Engine) Warmup(cardID string, records []HistoryRecord) int {
	for i := range records {
		r := &records[i]
		tx := Transaction{
			Timestamp:  r.Timestamp,
			MerchantID: r.MerchantID,
			CardID:     cardID,
			Amount:     r.Amount,
		}
		for _, det := range e.detectors {
			det.Observe(&tx)
		}
	}
	e.metrics.RecordsReplayed += int64(len(records))
	return len(records)
}

// GetDetector returns the detector for ruleType.
func (e *Engine) GetDetector(ruleType RuleType) (Detector, bool) {
	for _, d := range e.detectors {
		if d.Type() == ruleType {
			return d, true
		}
	}
	return nil, false
}

// ListDetectors returns all detectors in evaluation order.
func (e *Engine) ListDetectors() []Detector {
	return slices.Clone(e.detectors)
}

// ConfigureDetector configures a specific detector.
func (e *Engine) ConfigureDetector(ruleType RuleType, config json.RawMessage) error {
	d, ok := e.GetDetector(ruleType)
	if !ok {
		return fmt.Errorf("%w: unknown detector %q", ErrInvalidConfig, ruleType)
	}
	return d.Configure(config)
}

// SetDetectorEnabled enables or disables a specific detector.
func (e *Engine) SetDetectorEnabled(ruleType RuleType, enabled bool) error {
	d, ok := e.GetDetector(ruleType)
	if !ok {
		return fmt.Errorf("%w: unknown detector %q", ErrInvalidConfig, ruleType)
	}
	d.SetEnabled(enabled)
	return nil
}

// Travel returns the impossible travel rule, whose Locate the terminal uses
// to resolve its own position.
func (e *Engine) Travel() *ImpossibleTravel {
	return e.travel
}

// Metrics returns a copy of the engine metrics.
func (e *Engine) Metrics() EngineMetrics {
	m := e.metrics
	m.FlagsByRule = make(map[RuleType]int64, len(e.metrics.FlagsByRule))
	for k, v := range e.metrics.FlagsByRule {
		m.FlagsByRule[k] = v
	}
	return m
}
