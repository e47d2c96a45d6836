// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != "info" {
		t.Errorf("Level = %q, want info", cfg.Level)
	}
	if cfg.Format != "json" {
		t.Errorf("Format = %q, want json", cfg.Format)
	}
	if !cfg.Timestamp {
		t.Error("Timestamp should default to true")
	}
	if cfg.Output == nil {
		t.Error("Output should default to stderr")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"disabled", zerolog.Disabled},
		{"nonsense", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseLevel(tt.in); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestInit_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	Info().Str("uid", "04a1b2c3").Msg("card detected")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["message"] != "card detected" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["uid"] != "04a1b2c3" {
		t.Errorf("uid = %v", entry["uid"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v", entry["level"])
	}
}

func TestInit_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	Debug().Msg("hidden")
	Info().Msg("hidden")
	Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("below-level messages leaked: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn message missing: %q", out)
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())

	l := WithComponent("card")
	l.Info().Msg("x")

	if !strings.Contains(buf.String(), `"component":"card"`) {
		t.Errorf("component missing: %q", buf.String())
	}
}

func TestCtx_SessionID(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())

	ctx := ContextWithSessionID(context.Background(), "abc12345")
	Ctx(ctx).Info().Msg("tap")

	if !strings.Contains(buf.String(), `"session_id":"abc12345"`) {
		t.Errorf("session_id missing: %q", buf.String())
	}
}

func TestCtx_NoSessionID(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())

	CtxInfo(context.Background()).Msg("tap")

	if strings.Contains(buf.String(), "session_id") {
		t.Errorf("unexpected session_id: %q", buf.String())
	}
}

func TestGenerateSessionID(t *testing.T) {
	a, b := GenerateSessionID(), GenerateSessionID()
	if len(a) != 8 {
		t.Errorf("len = %d, want 8", len(a))
	}
	if a == b {
		t.Error("session ids should differ")
	}
	ctx := ContextWithNewSessionID(context.Background())
	if SessionIDFromContext(ctx) == "" {
		t.Error("ContextWithNewSessionID did not set an id")
	}
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	custom := NewTestLogger(&buf).With().Str("stored", "yes").Logger()
	ctx := ContextWithLogger(context.Background(), custom)

	l := LoggerFromContext(ctx)
	l.Info().Msg("x")
	if !strings.Contains(buf.String(), `"stored":"yes"`) {
		t.Errorf("stored logger not used: %q", buf.String())
	}
}

func TestInit_ServiceField(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &buf
	Init(cfg)
	defer Init(DefaultConfig())

	Info().Msg("x")
	if !strings.Contains(buf.String(), `"service":"tapguard"`) {
		t.Errorf("service field missing: %q", buf.String())
	}

	buf.Reset()
	cfg.Service = ""
	Init(cfg)
	Info().Msg("x")
	if strings.Contains(buf.String(), `"service"`) {
		t.Errorf("service field present with empty Service: %q", buf.String())
	}
}
