// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

// Package logging provides centralized zerolog-based structured logging for tapguard.
//
// The terminal runs on small single-board hardware, so the logger is the
// zero-allocation zerolog backend with JSON output by default and a console
// writer for bench work at the counter.
//
// # Quick Start
//
//	logging.Init(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	logging.Info().Str("uid", uid.String()).Msg("card detected")
//	logging.Error().Err(err).Msg("append failed")
//
// # Tap Sessions
//
// Every card tap gets a short session id so that the detect, read, evaluate and
// append lines of one purchase can be grepped together:
//
//	ctx = logging.ContextWithNewSessionID(ctx)
//	logging.Ctx(ctx).Info().Msg("evaluating purchase")
//
// # Configuration
//
// Environment Variables (through internal/config):
//
//	LOG_LEVEL   - trace, debug, info, warn, error (default: info)
//	LOG_FORMAT  - json, console (default: json)
//	LOG_CALLER  - include caller file:line (default: false)
//
// # Suture Integration
//
// The supervisor tree needs an *slog.Logger for sutureslog. NewSlogLogger
// returns one that writes through the global zerolog logger.
package logging
