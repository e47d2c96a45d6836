// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

/*
Package services adapts tapguard components to suture.Service.

  - HTTPServerService: ListenAndServe/Shutdown to Serve, with a bounded
    graceful drain.
  - TerminalService: the terminal worker's Run(ctx) loop.

Return values drive the supervisor:

	nil        stopped cleanly, not restarted
	error      crashed, restarted with backoff
	ctx.Err()  shutdown requested
*/
package services
