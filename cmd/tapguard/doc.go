// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

/*
Tapguard is an offline point-of-sale fraud detector that keeps each card's
rolling transaction history on the card itself.

Usage:

	tapguard tap <amount> [--merchant N] [--zip 10001] [--lat X --lon Y]
	tapguard inspect
	tapguard format [--clear]
	tapguard serve
	tapguard journal summary
	tapguard journal recent [--limit N]
	tapguard bench [--iters N]

Every command reads the configuration from --config, TAPGUARD_CONFIG or the
standard paths, with TAPGUARD_* environment overrides. The only reader
driver is "sim", a simulated card whose image is kept in badger at
reader.sim_path.

serve runs a suture supervisor tree:

	tapguard
	├── card-layer
	│   └── terminal-worker
	└── api-layer
	    └── http-server
*/
package main
