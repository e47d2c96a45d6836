// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package detection

import (
	"fmt"
	"math"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tapguard/internal/geo"
)

// Travel outcomes reported in TravelInfo.Reason.
const (
	TravelNoCoords   = "no_coords"
	TravelNoPrev     = "no_prev"
	TravelShortGap   = "short_gap"
	TravelShortDist  = "short_dist"
	TravelImpossible = "impossible"
	TravelOK         = "ok"
)

// TravelInfo is the diagnostic of the impossible travel rule.
type TravelInfo struct {
	Reason     string  `json:"reason"`
	SpeedKmh   float64 `json:"speed_kmh,omitempty"`
	DistanceKm float64 `json:"distance_km,omitempty"`
	DtSeconds  int64   `json:"dt_s,omitempty"`
}

// lastSeen is the card's previous observation. coords is nil when that
// observation could not be located.
type lastSeen struct {
	ts     int64
	coords *geo.Point
}

// ImpossibleTravel flags consecutive taps of one card whose locations are too
// far apart for the time between them (e.g. New York then Los Angeles a
// minute later).
type ImpossibleTravel struct {
	config   ImpossibleTravelConfig
	resolver geo.Resolver
	last     map[string]*lastSeen
	enabled  bool
}

// NewImpossibleTravel creates an impossible travel rule. resolver may be nil,
// in which case only explicit coordinates locate a transaction.
func NewImpossibleTravel(config ImpossibleTravelConfig, resolver geo.Resolver) (*ImpossibleTravel, error) {
	if err := validateTravelConfig(config); err != nil {
		return nil, err
	}
	return &ImpossibleTravel{
		config:   config,
		resolver: resolver,
		last:     make(map[string]*lastSeen),
		enabled:  true,
	}, nil
}

func validateTravelConfig(c ImpossibleTravelConfig) error {
	if c.MaxSpeedKmh <= 0 {
		return fmt.Errorf("%w: vmax_kmh must be positive", ErrInvalidConfig)
	}
	if c.MinDistanceKm < 0 {
		return fmt.Errorf("%w: min_km cannot be negative", ErrInvalidConfig)
	}
	if c.MinGapSeconds < 0 {
		return fmt.Errorf("%w: min_gap_seconds cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// Locate resolves the coordinates of a tap. Explicit coordinates win over
// the ZIP lookup.
func (t *ImpossibleTravel) Locate(zip string, coords *geo.Point) *geo.Point {
	if coords != nil {
		p := *coords
		return &p
	}
	if t.resolver == nil || zip == "" {
		return nil
	}
	if p, ok := t.resolver.Resolve(zip); ok {
		return &p
	}
	return nil
}

// Update records the tap as the card's last known position and returns
// whether the move from the previous position is implausible. The stored
// position is replaced on every call, including unlocated taps.
func (t *ImpossibleTravel) Update(cardID string, ts int64, zip string, coords *geo.Point) (bool, TravelInfo) {
	here := t.Locate(zip, coords)
	prev := t.last[cardID]
	t.last[cardID] = &lastSeen{ts: ts, coords: here}

	if here == nil {
		return false, TravelInfo{Reason: TravelNoCoords}
	}
	if prev == nil || prev.coords == nil {
		return false, TravelInfo{Reason: TravelNoPrev}
	}

	dt := ts - prev.ts
	if dt <= t.config.MinGapSeconds {
		return false, TravelInfo{Reason: TravelShortGap, DtSeconds: dt}
	}

	dist := geo.Haversine(*prev.coords, *here)
	if dist < t.config.MinDistanceKm {
		return false, TravelInfo{Reason: TravelShortDist, DistanceKm: roundTo2Decimals(dist), DtSeconds: dt}
	}

	speed := dist / (float64(dt) / 3600)
	info := TravelInfo{
		Reason:     TravelOK,
		SpeedKmh:   roundTo2Decimals(speed),
		DistanceKm: roundTo2Decimals(dist),
		DtSeconds:  dt,
	}
	if speed > t.config.MaxSpeedKmh {
		info.Reason = TravelImpossible
		return true, info
	}
	return false, info
}

// Forget clears the card's last known position, so its next located tap
// reports no_prev.
func (t *ImpossibleTravel) Forget(cardID string) {
	delete(t.last, cardID)
}

// Type returns the rule type.
func (t *ImpossibleTravel) Type() RuleType {
	return RuleTypeImpossibleTravel
}

// Observe updates the rule with tx. The reason tag carries the whole km/h.
func (t *ImpossibleTravel) Observe(tx *Transaction) Verdict {
	flag, info := t.Update(tx.CardID, tx.Timestamp, tx.Zip, tx.Coords)
	v := Verdict{Rule: RuleTypeImpossibleTravel, Flag: flag, Details: info}
	if flag {
		v.Reason = TravelReasonTag(info.SpeedKmh)
	}
	return v
}

// TravelReasonTag formats the reason tag for a flagged speed, truncating to
// whole km/h.
func TravelReasonTag(speedKmh float64) string {
	return fmt.Sprintf("%s_%dkmh", RuleTypeImpossibleTravel, int64(math.Trunc(speedKmh)))
}

// Configure updates the detector configuration. Last known positions are
// kept.
func (t *ImpossibleTravel) Configure(config json.RawMessage) error {
	newConfig := t.config
	if err := json.Unmarshal(config, &newConfig); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := validateTravelConfig(newConfig); err != nil {
		return err
	}
	t.config = newConfig
	return nil
}

// Enabled returns whether this detector is enabled.
func (t *ImpossibleTravel) Enabled() bool { return t.enabled }

// SetEnabled enables or disables the detector.
func (t *ImpossibleTravel) SetEnabled(enabled bool) { t.enabled = enabled }

// Config returns the current configuration.
func (t *ImpossibleTravel) Config() ImpossibleTravelConfig { return t.config }

// roundTo2Decimals rounds a float64 to 2 decimal places.
func roundTo2Decimals(f float64) float64 {
	return math.Round(f*100) / 100
}
