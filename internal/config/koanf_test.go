// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolateEnv clears the process environment and changes into an empty
// directory so no stray tapguard.yaml is picked up.
func isolateEnv(t *testing.T) {
	t.Helper()
	saved := os.Environ()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	os.Clearenv()
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(wd)
		os.Clearenv()
		for _, kv := range saved {
			if k, v, ok := strings.Cut(kv, "="); ok {
				_ = os.Setenv(k, v)
			}
		}
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Rules.MerchantWindow.Threshold != 6 {
		t.Errorf("MerchantWindow.Threshold = %d, want 6", cfg.Rules.MerchantWindow.Threshold)
	}
	if cfg.Rules.CardWindow.Threshold != 3 {
		t.Errorf("CardWindow.Threshold = %d, want 3", cfg.Rules.CardWindow.Threshold)
	}
	if cfg.Rules.MerchantWindow.WindowSeconds != 30 || cfg.Rules.MerchantWindow.KeepWindows != 10 {
		t.Errorf("MerchantWindow window = %ds x %d, want 30s x 10",
			cfg.Rules.MerchantWindow.WindowSeconds, cfg.Rules.MerchantWindow.KeepWindows)
	}
	if cfg.Rules.AmountCap.Cap != 1500 {
		t.Errorf("AmountCap.Cap = %g, want 1500", cfg.Rules.AmountCap.Cap)
	}
	ewma := cfg.Rules.CardEWMA
	if ewma.Alpha != 0.2 || ewma.K != 5.25 || ewma.Initial != 10 || ewma.MinGate != 850 {
		t.Errorf("CardEWMA = %+v", ewma)
	}
	travel := cfg.Rules.ImpossibleTravel
	if travel.MaxSpeedKmh != 600 || travel.MinDistanceKm != 150 || travel.MinGapSeconds != 60 {
		t.Errorf("ImpossibleTravel = %+v", travel)
	}
	if cfg.Card.HeaderFlushEvery != 3 {
		t.Errorf("Card.HeaderFlushEvery = %d, want 3", cfg.Card.HeaderFlushEvery)
	}
	if cfg.Card.RecoverUnflushed {
		t.Error("Card.RecoverUnflushed = true, want false")
	}
	if cfg.Card.RecentRecords != 10 {
		t.Errorf("Card.RecentRecords = %d, want 10", cfg.Card.RecentRecords)
	}
	if cfg.Reader.StableReads != 3 || cfg.Reader.Attempts != 3 {
		t.Errorf("Reader = %+v", cfg.Reader)
	}
	if cfg.Terminal.MerchantID != 1234 {
		t.Errorf("Terminal.MerchantID = %d, want 1234", cfg.Terminal.MerchantID)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"TAPGUARD_MERCHANT_ID", "terminal.merchant_id"},
		{"TAPGUARD_EWMA_K", "rules.card_ewma.k"},
		{"TAPGUARD_HEADER_FLUSH_EVERY", "card.header_flush_every"},
		{"TAPGUARD_RECOVER_UNFLUSHED", "card.recover_unflushed"},
		{"LOG_LEVEL", "logging.level"},
		{"HOME", ""},
		{"PATH", ""},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			if got := envTransformFunc(tt.env); got != tt.want {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
			}
		})
	}
}

func TestLoad_EnvVars(t *testing.T) {
	isolateEnv(t)
	os.Setenv("TAPGUARD_MERCHANT_ID", "4321")
	os.Setenv("TAPGUARD_EWMA_K", "4.5")
	os.Setenv("TAPGUARD_HEADER_FLUSH_EVERY", "1")
	os.Setenv("TAPGUARD_RECOVER_UNFLUSHED", "true")
	os.Setenv("TAPGUARD_DETECT_TIMEOUT", "15s")
	os.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Terminal.MerchantID != 4321 {
		t.Errorf("Terminal.MerchantID = %d, want 4321", cfg.Terminal.MerchantID)
	}
	if cfg.Rules.CardEWMA.K != 4.5 {
		t.Errorf("CardEWMA.K = %g, want 4.5", cfg.Rules.CardEWMA.K)
	}
	if cfg.Card.HeaderFlushEvery != 1 {
		t.Errorf("HeaderFlushEvery = %d, want 1", cfg.Card.HeaderFlushEvery)
	}
	if !cfg.Card.RecoverUnflushed {
		t.Error("RecoverUnflushed = false, want true")
	}
	if cfg.Reader.DetectTimeout != 15*time.Second {
		t.Errorf("DetectTimeout = %v, want 15s", cfg.Reader.DetectTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}

	// Unset values keep their defaults.
	if cfg.Rules.CardEWMA.Alpha != 0.2 {
		t.Errorf("CardEWMA.Alpha = %g, want 0.2 (default)", cfg.Rules.CardEWMA.Alpha)
	}
}

func TestLoad_WindowSecondsAppliesToBothRules(t *testing.T) {
	isolateEnv(t)
	os.Setenv("TAPGUARD_WINDOW_SECONDS", "45")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Rules.MerchantWindow.WindowSeconds != 45 || cfg.Rules.CardWindow.WindowSeconds != 45 {
		t.Errorf("window seconds = %d/%d, want 45/45",
			cfg.Rules.MerchantWindow.WindowSeconds, cfg.Rules.CardWindow.WindowSeconds)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	isolateEnv(t)

	content := `
rules:
  merchant_window:
    threshold: 8
  amount_cap:
    cap: 500
terminal:
  merchant_id: 77
  zip: "10001"
logging:
  level: warn
`
	path := filepath.Join(t.TempDir(), "tapguard.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	os.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Rules.MerchantWindow.Threshold != 8 {
		t.Errorf("MerchantWindow.Threshold = %d, want 8", cfg.Rules.MerchantWindow.Threshold)
	}
	if cfg.Rules.AmountCap.Cap != 500 {
		t.Errorf("AmountCap.Cap = %g, want 500", cfg.Rules.AmountCap.Cap)
	}
	if cfg.Terminal.Zip != "10001" {
		t.Errorf("Terminal.Zip = %q, want 10001", cfg.Terminal.Zip)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
	// Sibling keys of a partially specified section keep defaults.
	if cfg.Rules.MerchantWindow.WindowSeconds != 30 {
		t.Errorf("MerchantWindow.WindowSeconds = %d, want 30", cfg.Rules.MerchantWindow.WindowSeconds)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	isolateEnv(t)

	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("terminal:\n  merchant_id: 77\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	os.Setenv("TAPGUARD_MERCHANT_ID", "88")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Terminal.MerchantID != 88 {
		t.Errorf("Terminal.MerchantID = %d, want 88 (env wins)", cfg.Terminal.MerchantID)
	}
}

func TestLoad_ExplicitPathMissing(t *testing.T) {
	isolateEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoad_ValidationFails(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"zero threshold", map[string]string{"TAPGUARD_CARD_THRESHOLD": "0"}, "threshold"},
		{"merchant id overflow", map[string]string{"TAPGUARD_MERCHANT_ID": "70000"}, "merchant_id"},
		{"bad zip", map[string]string{"TAPGUARD_ZIP": "ABCDE"}, "zip"},
		{"bad key", map[string]string{"TAPGUARD_READER_KEY": "not-a-key"}, "key"},
		{"unknown driver", map[string]string{"TAPGUARD_READER_DRIVER": "pn532"}, "driver"},
		{"alpha out of range", map[string]string{"TAPGUARD_EWMA_ALPHA": "1.5"}, "alpha"},
		{"log level", map[string]string{"LOG_LEVEL": "loud"}, "LOG_LEVEL"},
		{"gate in cents", map[string]string{"TAPGUARD_EWMA_MIN_GATE": "150000"}, "min_gate"},
		{"poll slower than timeout", map[string]string{"TAPGUARD_POLL_INTERVAL": "2m"}, "poll_interval"},
		{"flush zero", map[string]string{"TAPGUARD_HEADER_FLUSH_EVERY": "0"}, "header_flush_every"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)
			for k, v := range tt.env {
				os.Setenv(k, v)
			}
			_, err := Load("")
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_UseCoordinatesRequiresLocation(t *testing.T) {
	cfg := defaultConfig()
	cfg.Terminal.UseCoordinates = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error without coordinates")
	}

	cfg.Terminal.Latitude = 40.7128
	cfg.Terminal.Longitude = -74.0060
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_JournalPath(t *testing.T) {
	cfg := defaultConfig()
	cfg.Journal.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty journal path")
	}

	cfg.Journal.InMemory = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("in-memory journal needs no path: %v", err)
	}
}

func TestReaderKey(t *testing.T) {
	cfg := defaultConfig()
	key, err := cfg.ReaderKey()
	if err != nil {
		t.Fatal(err)
	}
	if key != [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF} {
		t.Errorf("ReaderKey() = %x", key)
	}

	cfg.Reader.Key = "A0A1"
	if _, err := cfg.ReaderKey(); err == nil {
		t.Error("expected error for short key")
	}
}

func TestSimUIDBytes(t *testing.T) {
	cfg := defaultConfig()
	uid, err := cfg.SimUIDBytes()
	if err != nil {
		t.Fatal(err)
	}
	if len(uid) != 4 || uid[0] != 0x04 {
		t.Errorf("SimUIDBytes() = %x", uid)
	}
}
