// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package main

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tomtom215/tapguard/internal/card"
	"github.com/tomtom215/tapguard/internal/config"
	"github.com/tomtom215/tapguard/internal/detection"
	"github.com/tomtom215/tapguard/internal/geo"
	"github.com/tomtom215/tapguard/internal/journal"
	"github.com/tomtom215/tapguard/internal/logging"
	"github.com/tomtom215/tapguard/internal/nfc"
	"github.com/tomtom215/tapguard/internal/terminal"
)

// app holds everything a command needs, built from the configuration.
type app struct {
	cfg      *config.Config
	resolver *geo.MapResolver
	engine   *detection.Engine
	images   *nfc.BadgerImageStore
	sim      *nfc.Simulator
	reader   *nfc.BreakerTransceiver
	journal  *journal.Store
	term     *terminal.Terminal
}

// appOptions tweak wiring per command.
type appOptions struct {
	// withJournal opens the journal when it is enabled in the config.
	withJournal bool
	// journalOnly skips the reader and engine.
	journalOnly bool
}

func newApp(cfg *config.Config, opts appOptions) (*app, error) {
	a := &app{cfg: cfg}
	if err := a.build(opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) build(opts appOptions) error {
	cfg := a.cfg
	var err error
	if opts.withJournal || opts.journalOnly {
		if cfg.Journal.Enabled {
			a.journal, err = journal.Open(journal.Config{
				Path:      cfg.Journal.Path,
				InMemory:  cfg.Journal.InMemory,
				Retention: cfg.Journal.Retention,
			})
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
		}
	}
	if opts.journalOnly {
		return nil
	}

	a.resolver, err = loadResolver(cfg)
	if err != nil {
		return err
	}

	a.engine, err = detection.NewEngine(engineConfig(&cfg.Rules), a.resolver)
	if err != nil {
		return fmt.Errorf("build rule engine: %w", err)
	}

	key, err := cfg.ReaderKey()
	if err != nil {
		return err
	}
	if err := a.openReader(key); err != nil {
		return err
	}

	termCfg := terminalConfig(cfg, key)
	// A nil *journal.Store must not become a non-nil interface.
	var j terminal.Journal
	if a.journal != nil {
		j = a.journal
	}
	a.term = terminal.New(termCfg, a.reader, a.engine, j)
	return nil
}

// openReader builds the simulated reader: a badger-backed tag image store,
// the simulator presenting reader.sim_uid, and the circuit breaker.
func (a *app) openReader(key nfc.Key) error {
	cfg := a.cfg.Reader
	if cfg.Driver != "sim" {
		return fmt.Errorf("reader driver %q is not supported", cfg.Driver)
	}

	images, err := nfc.OpenBadgerImageStore(cfg.SimPath)
	if err != nil {
		return fmt.Errorf("open card images: %w", err)
	}
	a.images = images

	uid, err := a.cfg.SimUIDBytes()
	if err != nil {
		return err
	}
	a.sim = nfc.NewSimulator(images, key)
	if err := a.sim.Present(nfc.UID(uid)); err != nil {
		return fmt.Errorf("present simulated card: %w", err)
	}

	a.reader = nfc.NewBreakerTransceiver(a.sim, nfc.BreakerConfig{
		Failures: cfg.BreakerFailures,
		Timeout:  cfg.BreakerTimeout,
	})
	logging.Debug().
		Str("driver", cfg.Driver).
		Str("uid", nfc.UID(uid).String()).
		Str("sim_path", cfg.SimPath).
		Msg("Reader ready")
	return nil
}

// Close releases the stores. It is safe on a partially built app.
func (a *app) Close() error {
	var errs []error
	if a.images != nil {
		errs = append(errs, a.images.Close())
	}
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	return errors.Join(errs...)
}

// engineConfig maps the rules section onto the engine configuration.
// Disabled rules keep observing with their flag masked.
func engineConfig(rules *config.RulesConfig) detection.EngineConfig {
	ec := detection.EngineConfig{
		MerchantWindow: detection.WindowConfig{
			Threshold:     rules.MerchantWindow.Threshold,
			WindowSeconds: rules.MerchantWindow.WindowSeconds,
			KeepWindows:   rules.MerchantWindow.KeepWindows,
		},
		CardWindow: detection.WindowConfig{
			Threshold:     rules.CardWindow.Threshold,
			WindowSeconds: rules.CardWindow.WindowSeconds,
			KeepWindows:   rules.CardWindow.KeepWindows,
		},
		AmountCap: detection.AmountCapConfig{
			Cap: decimal.NewFromFloat(rules.AmountCap.Cap),
		},
		CardEWMA: detection.CardEWMAConfig{
			Alpha:   rules.CardEWMA.Alpha,
			K:       rules.CardEWMA.K,
			Initial: rules.CardEWMA.Initial,
			MinGate: rules.CardEWMA.MinGate,
		},
		ImpossibleTravel: detection.ImpossibleTravelConfig{
			MaxSpeedKmh:   rules.ImpossibleTravel.MaxSpeedKmh,
			MinDistanceKm: rules.ImpossibleTravel.MinDistanceKm,
			MinGapSeconds: rules.ImpossibleTravel.MinGapSeconds,
		},
	}

	enabled := map[detection.RuleType]bool{
		detection.RuleTypeMerchantWindow:   rules.MerchantWindow.Enabled,
		detection.RuleTypeCardWindow:       rules.CardWindow.Enabled,
		detection.RuleTypeAmountCap:        rules.AmountCap.Enabled,
		detection.RuleTypeCardEWMA:         rules.CardEWMA.Enabled,
		detection.RuleTypeImpossibleTravel: rules.ImpossibleTravel.Enabled,
	}
	for _, rule := range detection.RuleOrder {
		if !enabled[rule] {
			ec.Disabled = append(ec.Disabled, rule)
		}
	}
	return ec
}

// loadResolver reads the ZIP table. Without one every ZIP is unknown.
func loadResolver(cfg *config.Config) (*geo.MapResolver, error) {
	if cfg.Geo.ZipTable == "" {
		logging.Warn().Msg("No ZIP table configured, impossible travel only sees explicit coordinates")
		return geo.NewMapResolver(nil), nil
	}
	resolver, err := geo.LoadZipFile(cfg.Geo.ZipTable)
	if err != nil {
		return nil, fmt.Errorf("load zip table: %w", err)
	}
	logging.Info().Int("zips", resolver.Len()).Str("path", cfg.Geo.ZipTable).Msg("ZIP table loaded")
	return resolver, nil
}

func terminalConfig(cfg *config.Config, key nfc.Key) terminal.Config {
	tc := terminal.Config{
		MerchantID: uint32(cfg.Terminal.MerchantID),
		Zip:        cfg.Terminal.Zip,
		Key:        key,
		Retry: card.RetryPolicy{
			Attempts:         cfg.Reader.Attempts,
			Backoff:          cfg.Reader.RetryDelay,
			ReselectAttempts: card.DefaultRetryPolicy().ReselectAttempts,
			ReselectTimeout:  cfg.Reader.PollInterval,
		},
		Presence: nfc.PresenceConfig{
			PollInterval: cfg.Reader.PollInterval,
			StableReads:  cfg.Reader.StableReads,
			Timeout:      cfg.Reader.DetectTimeout,
		},
		RecentRecords:    cfg.Card.RecentRecords,
		FlushEvery:       cfg.Card.HeaderFlushEvery,
		RecoverUnflushed: cfg.Card.RecoverUnflushed,
	}
	if cfg.Terminal.UseCoordinates {
		tc.Coords = &geo.Point{Lat: cfg.Terminal.Latitude, Lon: cfg.Terminal.Longitude}
	}
	return tc
}
