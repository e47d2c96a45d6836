// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

// Package geo provides great-circle distance and ZIP code to coordinate resolution.
package geo

import (
	"math"
	"strings"
)

// EarthRadiusKm is the mean Earth radius used by Haversine.
const EarthRadiusKm = 6371.0

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Haversine returns the great-circle distance between a and b in kilometers.
func Haversine(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180.0
	lat2 := b.Lat * math.Pi / 180.0
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180.0

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// Resolver maps a ZIP code to coordinates. Implementations must be read-only
// after construction.
type Resolver interface {
	Resolve(zip string) (Point, bool)
}

// MapResolver is an in-memory Resolver keyed by normalized 5-digit ZIP.
type MapResolver struct {
	points map[string]Point
}

// NewMapResolver builds a resolver from zip -> point pairs. Keys are normalized
// with NormalizeZip; keys that normalize to "" are dropped.
func NewMapResolver(points map[string]Point) *MapResolver {
	m := &MapResolver{points: make(map[string]Point, len(points))}
	for zip, p := range points {
		if z := NormalizeZip(zip); z != "" {
			m.points[z] = p
		}
	}
	return m
}

// Resolve implements Resolver.
func (m *MapResolver) Resolve(zip string) (Point, bool) {
	if m == nil {
		return Point{}, false
	}
	z := NormalizeZip(zip)
	if z == "" {
		return Point{}, false
	}
	p, ok := m.points[z]
	return p, ok
}

// Len returns the number of ZIP codes known to the resolver.
func (m *MapResolver) Len() int {
	if m == nil {
		return 0
	}
	return len(m.points)
}

// NormalizeZip keeps the digits of zip, truncates to the first five and
// left-pads with zeros, so "2139", "02139" and "02139-4307" all become "02139".
// A zip without digits normalizes to "".
func NormalizeZip(zip string) string {
	var b strings.Builder
	for _, r := range zip {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			if b.Len() == 5 {
				break
			}
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return strings.Repeat("0", 5-b.Len()) + b.String()
}
