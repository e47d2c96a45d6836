// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package config

import (
	"encoding/hex"
	"fmt"
	"time"
)

// Config holds all tapguard configuration.
//
// Example:
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Terminal.MerchantID, cfg.Card.HeaderFlushEvery)
type Config struct {
	Rules    RulesConfig    `koanf:"rules"`
	Card     CardConfig     `koanf:"card"`
	Reader   ReaderConfig   `koanf:"reader"`
	Terminal TerminalConfig `koanf:"terminal"`
	Geo      GeoConfig      `koanf:"geo"`
	Journal  JournalConfig  `koanf:"journal"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// RulesConfig holds the parameters of every detection rule.
type RulesConfig struct {
	MerchantWindow   WindowRuleConfig `koanf:"merchant_window"`
	CardWindow       WindowRuleConfig `koanf:"card_window"`
	AmountCap        AmountCapConfig  `koanf:"amount_cap"`
	CardEWMA         EWMAConfig       `koanf:"card_ewma"`
	ImpossibleTravel TravelConfig     `koanf:"impossible_travel"`
}

// WindowRuleConfig configures a unique-counterpart sliding window rule.
type WindowRuleConfig struct {
	Enabled       bool  `koanf:"enabled"`
	Threshold     int   `koanf:"threshold" validate:"min=1"`
	WindowSeconds int64 `koanf:"window_seconds" validate:"min=1"`
	KeepWindows   int   `koanf:"keep_windows" validate:"min=1"`
}

// AmountCapConfig configures the static amount ceiling, in currency units.
type AmountCapConfig struct {
	Enabled bool    `koanf:"enabled"`
	Cap     float64 `koanf:"cap" validate:"gt=0"`
}

// EWMAConfig configures the per-card log-amount anomaly rule.
type EWMAConfig struct {
	Enabled bool    `koanf:"enabled"`
	Alpha   float64 `koanf:"alpha" validate:"gt=0,lte=1"`
	K       float64 `koanf:"k" validate:"gt=0"`
	Initial int     `koanf:"initial" validate:"min=0"`
	// MinGate is the smallest amount that may flag; 0 disables the gate.
	MinGate float64 `koanf:"min_gate" validate:"gte=0"`
}

// TravelConfig configures the impossible travel rule.
type TravelConfig struct {
	Enabled       bool    `koanf:"enabled"`
	MaxSpeedKmh   float64 `koanf:"vmax_kmh" validate:"gt=0"`
	MinDistanceKm float64 `koanf:"min_km" validate:"gte=0"`
	MinGapSeconds int64   `koanf:"min_gap_seconds" validate:"gte=0"`
}

// CardConfig holds on-card persistence settings.
type CardConfig struct {
	// RecentRecords is how many ring records are replayed before evaluating.
	RecentRecords int `koanf:"recent_records" validate:"min=0,max=44"`

	// HeaderFlushEvery persists the header after this many appends.
	// 1 writes it on every append.
	HeaderFlushEvery int `koanf:"header_flush_every" validate:"min=1,max=44"`

	// RecoverUnflushed lets the first session on a card recover records
	// written after its header was last persisted. Off trusts the header.
	RecoverUnflushed bool `koanf:"recover_unflushed"`
}

// ReaderConfig holds transceiver settings.
type ReaderConfig struct {
	Driver string `koanf:"driver" validate:"oneof=sim"`

	// Key is the MIFARE key A used for every data block, as 12 hex digits.
	Key string `koanf:"key" validate:"hexkey"`

	Attempts   int           `koanf:"attempts" validate:"min=1,max=10"`
	RetryDelay time.Duration `koanf:"retry_delay"`

	PollInterval  time.Duration `koanf:"poll_interval"`
	StableReads   int           `koanf:"stable_reads" validate:"min=1,max=20"`
	DetectTimeout time.Duration `koanf:"detect_timeout"`

	BreakerFailures uint32        `koanf:"breaker_failures" validate:"min=1"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`

	// SimPath is the badger directory holding simulated card images.
	// Empty keeps them in memory for the life of the process.
	SimPath string `koanf:"sim_path"`
	// SimUID is the UID the simulator presents, in hex.
	SimUID string `koanf:"sim_uid" validate:"hexadecimal,min=8,max=20"`
}

// TerminalConfig describes the terminal running this process.
type TerminalConfig struct {
	MerchantID int    `koanf:"merchant_id" validate:"min=0,max=65535"`
	Zip        string `koanf:"zip" validate:"omitempty,zip5"`

	// UseCoordinates sends Latitude/Longitude with every purchase instead of
	// resolving them from Zip.
	UseCoordinates bool    `koanf:"use_coordinates"`
	Latitude       float64 `koanf:"latitude" validate:"latitude"`
	Longitude      float64 `koanf:"longitude" validate:"longitude"`
}

// GeoConfig holds the ZIP coordinate table location.
type GeoConfig struct {
	// ZipTable is a CSV of zip,lat,lng rows. Empty disables ZIP resolution.
	ZipTable string `koanf:"zip_table"`
}

// JournalConfig holds the local purchase journal settings.
type JournalConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
	// InMemory keeps the journal in RAM (bench and tests).
	InMemory bool `koanf:"in_memory"`
	// RecentLimit caps how many entries a single recent query may return.
	RecentLimit int `koanf:"recent_limit" validate:"min=1,max=10000"`
	// Retention expires entries after this long. Zero keeps them forever.
	Retention time.Duration `koanf:"retention"`
}

// ServerConfig holds the local admin API settings.
type ServerConfig struct {
	Listen          string        `koanf:"listen" validate:"hostname_port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RateLimitReqs   int           `koanf:"rate_limit_requests" validate:"min=1"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	// QueueSize is the number of purchases that may wait for the card worker.
	QueueSize int `koanf:"queue_size" validate:"min=1,max=1024"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level"`

	// Format is the output format: json or console.
	// Default: json
	Format string `koanf:"format"`

	// Caller includes caller file and line number in logs.
	Caller bool `koanf:"caller"`
}

// ReaderKey decodes Reader.Key into its 6 raw bytes.
func (c *Config) ReaderKey() ([6]byte, error) {
	var key [6]byte
	raw, err := hex.DecodeString(c.Reader.Key)
	if err != nil {
		return key, fmt.Errorf("reader.key: %w", err)
	}
	if len(raw) != len(key) {
		return key, fmt.Errorf("reader.key: got %d bytes, want %d", len(raw), len(key))
	}
	copy(key[:], raw)
	return key, nil
}

// SimUIDBytes decodes Reader.SimUID.
func (c *Config) SimUIDBytes() ([]byte, error) {
	uid, err := hex.DecodeString(c.Reader.SimUID)
	if err != nil {
		return nil, fmt.Errorf("reader.sim_uid: %w", err)
	}
	return uid, nil
}
