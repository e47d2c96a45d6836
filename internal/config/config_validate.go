// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package config

import (
	"fmt"
	"time"

	"github.com/tomtom215/tapguard/internal/validation"
)

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

// Validate checks struct tags first, then the cross-field rules below.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	if err := c.validateRules(); err != nil {
		return err
	}

	if err := c.validateTerminal(); err != nil {
		return err
	}

	if err := c.validateReader(); err != nil {
		return err
	}

	if err := c.validateJournal(); err != nil {
		return err
	}

	if err := c.validateServer(); err != nil {
		return err
	}

	return c.validateLogging()
}

// validateRules checks constraints that span more than one rule.
func (c *Config) validateRules() error {
	e := c.Rules.CardEWMA
	a := c.Rules.AmountCap
	// A gate a hundred times the cap is a minor-unit value.
	if e.Enabled && a.Enabled && e.MinGate >= a.Cap*100 {
		return fmt.Errorf("rules.card_ewma.min_gate (%g) must be in currency units, not minor units", e.MinGate)
	}
	return nil
}

// validateTerminal requires a location when coordinates are sent explicitly.
func (c *Config) validateTerminal() error {
	t := c.Terminal
	if t.UseCoordinates && t.Latitude == 0 && t.Longitude == 0 {
		return fmt.Errorf("terminal.latitude and terminal.longitude are required when terminal.use_coordinates=true")
	}
	return nil
}

// validateReader checks reader timing values.
func (c *Config) validateReader() error {
	if err := requirePositive("reader.poll_interval", c.Reader.PollInterval); err != nil {
		return err
	}
	if err := requirePositive("reader.detect_timeout", c.Reader.DetectTimeout); err != nil {
		return err
	}
	if err := requirePositive("reader.breaker_timeout", c.Reader.BreakerTimeout); err != nil {
		return err
	}
	if c.Reader.RetryDelay < 0 {
		return fmt.Errorf("reader.retry_delay must not be negative")
	}
	if c.Reader.PollInterval >= c.Reader.DetectTimeout {
		return fmt.Errorf("reader.poll_interval (%s) must be shorter than reader.detect_timeout (%s)",
			c.Reader.PollInterval, c.Reader.DetectTimeout)
	}
	return nil
}

// validateJournal requires a path unless the journal is disabled or in memory.
func (c *Config) validateJournal() error {
	if !c.Journal.Enabled || c.Journal.InMemory {
		return nil
	}
	if c.Journal.Path == "" {
		return fmt.Errorf("journal.path is required when journal.enabled=true")
	}
	return nil
}

// validateServer checks admin API timing values.
func (c *Config) validateServer() error {
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"server.read_timeout", c.Server.ReadTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
		{"server.rate_limit_window", c.Server.RateLimitWindow},
	} {
		if err := requirePositive(d.name, d.value); err != nil {
			return err
		}
	}
	return nil
}

// validateLogging validates logging configuration.
func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

func requirePositive(name string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%s must be positive", name)
	}
	return nil
}
