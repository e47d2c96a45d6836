// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package main

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/tomtom215/tapguard/internal/config"
	"github.com/tomtom215/tapguard/internal/detection"
)

// benchWarmup transactions prime the EWMA before timing starts.
const benchWarmup = 10

// BenchResult summarizes rule engine latency.
type BenchResult struct {
	Iterations int           `json:"iterations"`
	Total      time.Duration `json:"total_ns"`
	Mean       time.Duration `json:"mean_ns"`
	P50        time.Duration `json:"p50_ns"`
	P95        time.Duration `json:"p95_ns"`
	P99        time.Duration `json:"p99_ns"`
}

func benchCmd(opts *rootOptions) *cobra.Command {
	var (
		iters  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure rule engine evaluation latency",
		Long: `Evaluates one synthetic transaction repeatedly with the configured
rules and prints total, mean, P50, P95 and P99 latency. No card is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if iters < 1 {
				return fmt.Errorf("--iters must be at least 1")
			}
			res, err := runBench(opts.cfg, iters)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), res)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Iterations: %d  total: %s  mean: %s\n", res.Iterations, res.Total, res.Mean)
			fmt.Fprintf(out, "P50: %s  P95: %s  P99: %s\n", res.P50, res.P95, res.P99)
			return nil
		},
	}

	cmd.Flags().IntVarP(&iters, "iters", "n", 10000, "Number of evaluations")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")

	return cmd
}

func runBench(cfg *config.Config, iters int) (BenchResult, error) {
	resolver, err := loadResolver(cfg)
	if err != nil {
		return BenchResult{}, err
	}
	engine, err := detection.NewEngine(engineConfig(&cfg.Rules), resolver)
	if err != nil {
		return BenchResult{}, fmt.Errorf("build rule engine: %w", err)
	}

	tx := detection.Transaction{
		Timestamp:  time.Now().Unix(),
		MerchantID: 1234,
		CardID:     "bench",
		Zip:        cfg.Terminal.Zip,
	}
	for range benchWarmup {
		tx.Amount = decimal.New(int64(rand.IntN(3901)+100), -2)
		engine.Evaluate(&tx)
	}

	samples := make([]time.Duration, iters)
	start := time.Now()
	for i := range samples {
		t := time.Now()
		engine.Evaluate(&tx)
		samples[i] = time.Since(t)
	}
	total := time.Since(start)

	slices.Sort(samples)
	var sum time.Duration
	for _, s := range samples {
		sum += s
	}
	return BenchResult{
		Iterations: iters,
		Total:      total,
		Mean:       sum / time.Duration(iters),
		P50:        percentile(samples, 50),
		P95:        percentile(samples, 95),
		P99:        percentile(samples, 99),
	}, nil
}

// percentile returns the nearest-rank value at p from sorted samples.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := p*len(sorted)/100 - 1
	idx = max(0, min(len(sorted)-1, idx))
	return sorted[idx]
}
