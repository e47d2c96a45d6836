// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package detection

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tapguard/internal/cache"
)

// WindowInfo is the diagnostic of a window rule.
type WindowInfo struct {
	// Count is the number of distinct counterparts in the current bucket.
	Count int `json:"count"`
	// Bucket is the start of the current bucket.
	Bucket int64 `json:"bucket"`
}

func validateWindowConfig(c WindowConfig) error {
	if c.Threshold <= 0 {
		return fmt.Errorf("%w: threshold must be positive", ErrInvalidConfig)
	}
	if c.WindowSeconds <= 0 {
		return fmt.Errorf("%w: window_seconds must be positive", ErrInvalidConfig)
	}
	if c.KeepWindows <= 0 {
		return fmt.Errorf("%w: keep_windows must be positive", ErrInvalidConfig)
	}
	return nil
}

// MerchantWindow flags a merchant that sees too many distinct cards inside
// one bucket, the signature of a card-testing run.
type MerchantWindow struct {
	config  WindowConfig
	counter *cache.BucketCounter[uint32, string]
	enabled bool
}

// NewMerchantWindow creates a merchant window rule.
func NewMerchantWindow(config WindowConfig) (*MerchantWindow, error) {
	counter, err := newWindowCounter[uint32, string](config)
	if err != nil {
		return nil, err
	}
	return &MerchantWindow{config: config, counter: counter, enabled: true}, nil
}

// Update records cardID at merchant and returns whether the distinct card
// count for the bucket reached the threshold.
func (w *MerchantWindow) Update(merchant uint32, ts int64, cardID string) (bool, WindowInfo) {
	count := w.counter.Update(merchant, ts, cardID)
	return count >= w.config.Threshold, WindowInfo{Count: count, Bucket: w.counter.BucketStart(ts)}
}

// Type returns the rule type.
func (w *MerchantWindow) Type() RuleType {
	return RuleTypeMerchantWindow
}

// Observe updates the rule with tx.
func (w *MerchantWindow) Observe(tx *Transaction) Verdict {
	flag, info := w.Update(tx.MerchantID, tx.Timestamp, tx.CardID)
	return windowVerdict(RuleTypeMerchantWindow, flag, info)
}

// Configure replaces the configuration and discards all window state.
func (w *MerchantWindow) Configure(config json.RawMessage) error {
	newConfig, counter, err := reconfigureWindow[uint32, string](w.config, config)
	if err != nil {
		return err
	}
	w.config = newConfig
	w.counter = counter
	return nil
}

// Enabled returns whether this detector is enabled.
func (w *MerchantWindow) Enabled() bool { return w.enabled }

// SetEnabled enables or disables the detector.
func (w *MerchantWindow) SetEnabled(enabled bool) { w.enabled = enabled }

// Config returns the current configuration.
func (w *MerchantWindow) Config() WindowConfig { return w.config }

// CardWindow flags a card used at too many distinct merchants inside one
// bucket.
type CardWindow struct {
	config  WindowConfig
	counter *cache.BucketCounter[string, uint32]
	enabled bool
}

// NewCardWindow creates a card window rule.
func NewCardWindow(config WindowConfig) (*CardWindow, error) {
	counter, err := newWindowCounter[string, uint32](config)
	if err != nil {
		return nil, err
	}
	return &CardWindow{config: config, counter: counter, enabled: true}, nil
}

// Update records merchant for cardID and returns whether the distinct
// merchant count for the bucket reached the threshold.
func (w *CardWindow) Update(cardID string, ts int64, merchant uint32) (bool, WindowInfo) {
	count := w.counter.Update(cardID, ts, merchant)
	return count >= w.config.Threshold, WindowInfo{Count: count, Bucket: w.counter.BucketStart(ts)}
}

// Type returns the rule type.
func (w *CardWindow) Type() RuleType {
	return RuleTypeCardWindow
}

// Observe updates the rule with tx.
func (w *CardWindow) Observe(tx *Transaction) Verdict {
	flag, info := w.Update(tx.CardID, tx.Timestamp, tx.MerchantID)
	return windowVerdict(RuleTypeCardWindow, flag, info)
}

// Configure replaces the configuration and discards all window state.
func (w *CardWindow) Configure(config json.RawMessage) error {
	newConfig, counter, err := reconfigureWindow[string, uint32](w.config, config)
	if err != nil {
		return err
	}
	w.config = newConfig
	w.counter = counter
	return nil
}

// Enabled returns whether this detector is enabled.
func (w *CardWindow) Enabled() bool { return w.enabled }

// SetEnabled enables or disables the detector.
func (w *CardWindow) SetEnabled(enabled bool) { w.enabled = enabled }

// Config returns the current configuration.
func (w *CardWindow) Config() WindowConfig { return w.config }

func newWindowCounter[E, C comparable](config WindowConfig) (*cache.BucketCounter[E, C], error) {
	if err := validateWindowConfig(config); err != nil {
		return nil, err
	}
	return cache.NewBucketCounter[E, C](config.WindowSeconds, config.KeepWindows)
}

// reconfigureWindow decodes raw over current, so omitted fields keep their
// values, and builds a fresh counter for the result.
func reconfigureWindow[E, C comparable](current WindowConfig, raw json.RawMessage) (WindowConfig, *cache.BucketCounter[E, C], error) {
	newConfig := current
	if err := json.Unmarshal(raw, &newConfig); err != nil {
		return current, nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	counter, err := newWindowCounter[E, C](newConfig)
	if err != nil {
		return current, nil, err
	}
	return newConfig, counter, nil
}

func windowVerdict(rule RuleType, flag bool, info WindowInfo) Verdict {
	v := Verdict{Rule: rule, Flag: flag, Details: info}
	if flag {
		v.Reason = string(rule)
	}
	return v
}
