// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package geo

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// LoadZipCSV reads "zip,lat,lng" rows into a MapResolver. A first row whose
// latitude column is not a number is treated as a header. Extra columns are
// ignored.
func LoadZipCSV(r io.Reader) (*MapResolver, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	points := make(map[string]Point)
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("zip table: %w", err)
		}
		line++
		if len(rec) < 3 {
			return nil, fmt.Errorf("zip table line %d: want zip,lat,lng, got %d columns", line, len(rec))
		}

		lat, latErr := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		lon, lonErr := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if latErr != nil || lonErr != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("zip table line %d: bad coordinates %q,%q", line, rec[1], rec[2])
		}
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return nil, fmt.Errorf("zip table line %d: coordinates out of range", line)
		}

		if z := NormalizeZip(rec[0]); z != "" {
			points[z] = Point{Lat: lat, Lon: lon}
		}
	}

	return &MapResolver{points: points}, nil
}

// LoadZipFile opens path and loads it with LoadZipCSV.
func LoadZipFile(path string) (*MapResolver, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open zip table: %w", err)
	}
	defer f.Close()
	return LoadZipCSV(f)
}
