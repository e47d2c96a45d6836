// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package main

import (
	"github.com/spf13/cobra"

	"github.com/tomtom215/tapguard/internal/card"
	"github.com/tomtom215/tapguard/internal/logging"
)

func inspectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Print the header and full history of the presented card",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts.cfg, appOptions{})
			if err != nil {
				return err
			}
			defer closeApp(a)

			insp, err := a.term.Inspect(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), insp)
		},
	}
}

func formatCmd(opts *rootOptions) *cobra.Command {
	var clearHeader bool

	cmd := &cobra.Command{
		Use:   "format",
		Short: "Wipe the transaction ring of the presented card",
		Long: `Zeroes every ring slot. By default the header is reset but keeps its
magic and version; --clear zeroes the header block too.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode := card.KeepHeader
			if clearHeader {
				mode = card.ClearHeader
			}

			a, err := newApp(opts.cfg, appOptions{})
			if err != nil {
				return err
			}
			defer closeApp(a)

			res, err := a.term.Format(cmd.Context(), mode)
			if res != nil {
				if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
					return perr
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&clearHeader, "clear", false, "Zero the header block as well")

	return cmd
}

func closeApp(a *app) {
	if err := a.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing stores")
	}
}
