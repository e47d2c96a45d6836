// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"tapguard.yaml",
	"tapguard.yml",
	"/etc/tapguard/config.yaml",
	"/etc/tapguard/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "TAPGUARD_CONFIG"

// defaultConfig returns the tuned terminal defaults.
func defaultConfig() *Config {
	return &Config{
		Rules: RulesConfig{
			MerchantWindow: WindowRuleConfig{
				Enabled:       true,
				Threshold:     6,
				WindowSeconds: 30,
				KeepWindows:   10, // 5 minute lookback
			},
			CardWindow: WindowRuleConfig{
				Enabled:       true,
				Threshold:     3,
				WindowSeconds: 30,
				KeepWindows:   10,
			},
			AmountCap: AmountCapConfig{
				Enabled: true,
				Cap:     1500,
			},
			CardEWMA: EWMAConfig{
				Enabled: true,
				Alpha:   0.2,
				K:       5.25,
				Initial: 10,
				MinGate: 850,
			},
			ImpossibleTravel: TravelConfig{
				Enabled:       true,
				MaxSpeedKmh:   600,
				MinDistanceKm: 150,
				MinGapSeconds: 60,
			},
		},
		Card: CardConfig{
			RecentRecords:    10,
			HeaderFlushEvery: 3,
		},
		Reader: ReaderConfig{
			Driver:          "sim",
			Key:             "FFFFFFFFFFFF",
			Attempts:        3,
			RetryDelay:      100 * time.Millisecond,
			PollInterval:    200 * time.Millisecond,
			StableReads:     3,
			DetectTimeout:   60 * time.Second,
			BreakerFailures: 20,
			BreakerTimeout:  5 * time.Second,
			SimPath:         "",
			SimUID:          "04a1b2c3",
		},
		Terminal: TerminalConfig{
			MerchantID: 1234,
		},
		Journal: JournalConfig{
			Enabled:     true,
			Path:        "/var/lib/tapguard/journal",
			RecentLimit: 500,
		},
		Server: ServerConfig{
			Listen:          "127.0.0.1:8089",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    75 * time.Second, // covers a full card detect timeout
			ShutdownTimeout: 10 * time.Second,
			RateLimitReqs:   60,
			RateLimitWindow: time.Minute,
			QueueSize:       8,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration with Koanf v2 from three layers:
//  1. Defaults
//  2. Config file: explicitPath if set, otherwise the first file found by findConfigFile
//  3. Environment variables
//
// The result is validated before it is returned.
func Load(explicitPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := explicitPath
	if configPath == "" {
		configPath = findConfigFile()
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// TAPGUARD_WINDOW_SECONDS sets both window rules.
	if w := k.Get("rules.window_seconds"); w != nil {
		for _, path := range []string{"rules.merchant_window.window_seconds", "rules.card_window.window_seconds"} {
			if err := k.Set(path, w); err != nil {
				return nil, fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
		k.Delete("rules.window_seconds")
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file found, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envMappings maps lower-cased environment variable names to koanf paths.
// Unmapped variables are ignored so unrelated environment does not leak in.
var envMappings = map[string]string{
	// Rules
	"tapguard_merchant_threshold":      "rules.merchant_window.threshold",
	"tapguard_merchant_window_enabled": "rules.merchant_window.enabled",
	"tapguard_card_threshold":          "rules.card_window.threshold",
	"tapguard_card_window_enabled":     "rules.card_window.enabled",
	"tapguard_window_seconds":          "rules.window_seconds",
	"tapguard_keep_windows_merchant":   "rules.merchant_window.keep_windows",
	"tapguard_keep_windows_card":       "rules.card_window.keep_windows",
	"tapguard_amount_cap":              "rules.amount_cap.cap",
	"tapguard_amount_cap_enabled":      "rules.amount_cap.enabled",
	"tapguard_ewma_enabled":            "rules.card_ewma.enabled",
	"tapguard_ewma_alpha":              "rules.card_ewma.alpha",
	"tapguard_ewma_k":                  "rules.card_ewma.k",
	"tapguard_ewma_initial":            "rules.card_ewma.initial",
	"tapguard_ewma_min_gate":           "rules.card_ewma.min_gate",
	"tapguard_travel_enabled":          "rules.impossible_travel.enabled",
	"tapguard_travel_vmax_kmh":         "rules.impossible_travel.vmax_kmh",
	"tapguard_travel_min_km":           "rules.impossible_travel.min_km",
	"tapguard_travel_min_gap_seconds":  "rules.impossible_travel.min_gap_seconds",

	// Card
	"tapguard_recent_records":     "card.recent_records",
	"tapguard_header_flush_every": "card.header_flush_every",
	"tapguard_recover_unflushed":  "card.recover_unflushed",

	// Reader
	"tapguard_reader_driver":      "reader.driver",
	"tapguard_reader_key":         "reader.key",
	"tapguard_reader_attempts":    "reader.attempts",
	"tapguard_reader_retry_delay": "reader.retry_delay",
	"tapguard_poll_interval":      "reader.poll_interval",
	"tapguard_stable_reads":       "reader.stable_reads",
	"tapguard_detect_timeout":     "reader.detect_timeout",
	"tapguard_breaker_failures":   "reader.breaker_failures",
	"tapguard_breaker_timeout":    "reader.breaker_timeout",
	"tapguard_sim_path":           "reader.sim_path",
	"tapguard_sim_uid":            "reader.sim_uid",

	// Terminal
	"tapguard_merchant_id":     "terminal.merchant_id",
	"tapguard_zip":             "terminal.zip",
	"tapguard_use_coordinates": "terminal.use_coordinates",
	"tapguard_latitude":        "terminal.latitude",
	"tapguard_longitude":       "terminal.longitude",

	// Geo
	"tapguard_zip_table": "geo.zip_table",

	// Journal
	"tapguard_journal_enabled":      "journal.enabled",
	"tapguard_journal_path":         "journal.path",
	"tapguard_journal_in_memory":    "journal.in_memory",
	"tapguard_journal_recent_limit": "journal.recent_limit",
	"tapguard_journal_retention":    "journal.retention",

	// Server
	"tapguard_listen":              "server.listen",
	"tapguard_read_timeout":        "server.read_timeout",
	"tapguard_write_timeout":       "server.write_timeout",
	"tapguard_shutdown_timeout":    "server.shutdown_timeout",
	"tapguard_rate_limit_requests": "server.rate_limit_requests",
	"tapguard_rate_limit_window":   "server.rate_limit_window",
	"tapguard_queue_size":          "server.queue_size",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf paths.
//
// Examples:
//   - TAPGUARD_MERCHANT_ID -> terminal.merchant_id
//   - TAPGUARD_EWMA_K -> rules.card_ewma.k
//   - LOG_LEVEL -> logging.level
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
