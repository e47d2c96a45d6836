// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var errJournalDisabled = errors.New("the purchase journal is disabled (journal.enabled)")

func journalCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Query the local purchase journal",
	}
	cmd.AddCommand(journalSummaryCmd(opts))
	cmd.AddCommand(journalRecentCmd(opts))
	return cmd
}

func journalSummaryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print purchase and flag totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts.cfg, appOptions{journalOnly: true})
			if err != nil {
				return err
			}
			defer closeApp(a)
			if a.journal == nil {
				return errJournalDisabled
			}

			summary, err := a.journal.Summary(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summary)
		},
	}
}

func journalRecentCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Print the newest journal entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts.cfg, appOptions{journalOnly: true})
			if err != nil {
				return err
			}
			defer closeApp(a)
			if a.journal == nil {
				return errJournalDisabled
			}

			limit = min(max(limit, 1), opts.cfg.Journal.RecentLimit)
			entries, err := a.journal.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries")

	return cmd
}
