// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

/*
Package config provides centralized configuration management for tapguard.

# Configuration Sources

Configuration is loaded with Koanf v2 in three layers, later layers winning:

 1. Built-in defaults (defaultConfig), tuned on the reference terminal
 2. Optional YAML file: the --config flag, TAPGUARD_CONFIG, ./tapguard.yaml,
    or /etc/tapguard/config.yaml (first one found)
 3. Environment variables, mapped explicitly (see envTransformFunc)

# Configuration Structure

  - RulesConfig: thresholds and parameters of the five detection rules
  - CardConfig: ring read depth and header batching policy
  - ReaderConfig: transceiver driver, sector key, retry budget, presence polling
  - TerminalConfig: merchant identity and location of this terminal
  - GeoConfig: ZIP to coordinate table
  - JournalConfig: local badger journal of processed purchases
  - ServerConfig: local admin HTTP API
  - LoggingConfig: zerolog level and format

# Environment Variables

Rules:
  - TAPGUARD_MERCHANT_THRESHOLD, TAPGUARD_CARD_THRESHOLD (default: 6, 3)
  - TAPGUARD_WINDOW_SECONDS (default: 30, applied to both window rules)
  - TAPGUARD_AMOUNT_CAP (default: 1500)
  - TAPGUARD_EWMA_ALPHA, TAPGUARD_EWMA_K, TAPGUARD_EWMA_INITIAL, TAPGUARD_EWMA_MIN_GATE
  - TAPGUARD_TRAVEL_VMAX_KMH, TAPGUARD_TRAVEL_MIN_KM, TAPGUARD_TRAVEL_MIN_GAP_SECONDS

Card and reader:
  - TAPGUARD_RECENT_RECORDS (default: 10)
  - TAPGUARD_HEADER_FLUSH_EVERY (default: 3)
  - TAPGUARD_READER_DRIVER (default: sim)
  - TAPGUARD_READER_KEY (default: FFFFFFFFFFFF)
  - TAPGUARD_READER_ATTEMPTS (default: 3)
  - TAPGUARD_DETECT_TIMEOUT (default: 60s)

Terminal:
  - TAPGUARD_MERCHANT_ID (default: 1234)
  - TAPGUARD_ZIP

Observability:
  - LOG_LEVEL, LOG_FORMAT, LOG_CALLER
  - TAPGUARD_LISTEN (default: 127.0.0.1:8089)

# Validation

Load validates struct tags through internal/validation and then runs the
cross-field checks in config_validate.go. A bad threshold fails the process
before any card is touched.
*/
package config
