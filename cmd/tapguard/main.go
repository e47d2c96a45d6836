// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/tapguard/internal/config"
	"github.com/tomtom215/tapguard/internal/logging"
)

// Version is set at build time.
var Version = "dev"

// rootOptions carries the persistent flags and the configuration they load.
type rootOptions struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "tapguard",
		Short:         "Tapguard - offline fraud detection with history stored on the card",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default: search "+config.ConfigPathEnvVar+" and standard paths)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override logging.level")

	rootCmd.AddCommand(tapCmd(opts))
	rootCmd.AddCommand(inspectCmd(opts))
	rootCmd.AddCommand(formatCmd(opts))
	rootCmd.AddCommand(serveCmd(opts))
	rootCmd.AddCommand(journalCmd(opts))
	rootCmd.AddCommand(benchCmd(opts))

	return rootCmd
}

// load reads the configuration and initializes logging.
func (o *rootOptions) load() error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = cfg.Logging.Format
	logCfg.Caller = cfg.Logging.Caller
	logging.Init(logCfg)

	o.cfg = cfg
	return nil
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
