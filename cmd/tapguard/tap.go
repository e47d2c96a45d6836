// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/tomtom215/tapguard/internal/geo"
	"github.com/tomtom215/tapguard/internal/terminal"
)

func tapCmd(opts *rootOptions) *cobra.Command {
	var (
		merchant int
		zip      string
		lat, lon float64
	)

	cmd := &cobra.Command{
		Use:   "tap <amount>",
		Short: "Run one purchase against the presented card",
		Long: `Waits for a card, replays its history, evaluates the purchase and
appends it to the card. The decision is printed as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[0])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[0], err)
			}
			p := terminal.Purchase{Amount: amount, Zip: zip}
			if cmd.Flags().Changed("merchant") {
				if merchant < 0 || merchant > 0xFFFF {
					return fmt.Errorf("--merchant must be between 0 and 65535")
				}
				m := uint32(merchant)
				p.MerchantID = &m
			}
			if cmd.Flags().Changed("lat") != cmd.Flags().Changed("lon") {
				return fmt.Errorf("--lat and --lon must be given together")
			}
			if cmd.Flags().Changed("lat") {
				p.Coords = &geo.Point{Lat: lat, Lon: lon}
			}

			a, err := newApp(opts.cfg, appOptions{withJournal: true})
			if err != nil {
				return err
			}
			defer closeApp(a)

			out, err := a.term.ProcessPurchase(cmd.Context(), p)
			if out != nil {
				if perr := printJSON(cmd.OutOrStdout(), out); perr != nil {
					return perr
				}
			}
			return err
		},
	}

	cmd.Flags().IntVarP(&merchant, "merchant", "m", 0, "Merchant ID (default: terminal.merchant_id)")
	cmd.Flags().StringVarP(&zip, "zip", "z", "", "5-digit ZIP (default: terminal.zip)")
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude, overrides the ZIP location")
	cmd.Flags().Float64Var(&lon, "lon", 0, "Longitude, overrides the ZIP location")

	return cmd
}
