// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomtom215/tapguard/internal/api"
	"github.com/tomtom215/tapguard/internal/config"
	"github.com/tomtom215/tapguard/internal/logging"
	"github.com/tomtom215/tapguard/internal/supervisor"
	"github.com/tomtom215/tapguard/internal/supervisor/services"
	"github.com/tomtom215/tapguard/internal/terminal"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the card worker and the local admin API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts.cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(cfg, appOptions{withJournal: true})
	if err != nil {
		return err
	}
	defer closeApp(a)

	worker := terminal.NewWorker(a.term, cfg.Server.QueueSize)

	var j api.JournalReader
	if a.journal != nil {
		j = a.journal
	}
	handler := api.NewHandler(apiConfig(cfg), worker, j, a.reader)

	server := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           api.NewRouter(handler),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), supervisor.DefaultTreeConfig())
	if err != nil {
		return err
	}
	tree.AddCardService(services.NewTerminalService(worker))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	logging.Info().
		Str("listen", cfg.Server.Listen).
		Int("queue_size", cfg.Server.QueueSize).
		Bool("journal", a.journal != nil).
		Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// The channel receives exactly one value, when the tree has stopped.
	var treeErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown requested, waiting for supervisor to finish...")
		treeErr = <-errCh
	case treeErr = <-errCh:
	}
	if treeErr != nil && !errors.Is(treeErr, context.Canceled) {
		logging.Error().Err(treeErr).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Tapguard stopped")
	return nil
}

// apiConfig maps the server and journal sections onto the admin API.
func apiConfig(cfg *config.Config) api.Config {
	ac := api.DefaultConfig()
	ac.RateLimitRequests = cfg.Server.RateLimitReqs
	ac.RateLimitWindow = cfg.Server.RateLimitWindow
	if cfg.Journal.RecentLimit > 0 {
		ac.MaxRecent = cfg.Journal.RecentLimit
	}
	return ac
}
