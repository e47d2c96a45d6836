// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

/*
Package supervisor runs the long-lived parts of `tapguard serve` under a
suture v4 supervisor tree.

# Tree

	RootSupervisor ("tapguard")
	├── CardSupervisor ("card-layer")
	│   └── TerminalService (terminal-worker)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (http-server)

The card layer owns the reader. If the worker crashes it is restarted with
backoff while the API layer keeps serving health, metrics and journal
queries. Purchases submitted during the restart wait in the worker queue or
fail with terminal.ErrQueueFull.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddCardService(services.NewTerminalService(worker))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	return tree.Serve(ctx)

Supervisor events (starts, failures, backoff) are logged through sutureslog
into the zerolog pipeline via logging.NewSlogLogger.
*/
package supervisor
