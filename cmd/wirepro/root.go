// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/wirepro/wirepro/pkg/config"
	"github.com/wirepro/wirepro/pkg/logging"
	"github.com/wirepro/wirepro/pkg/ux"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	output     string
	logLevel   string

	cfg     *config.Config
	logger  *logging.Logger
	printer *ux.Printer
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "wirepro",
		Short: "Field diagnostic assistant for electricians and installers",
		Long: `Wire Pro analyzes fault descriptions against a technical knowledge base,
asks an LLM for a structured six-section report and falls back to an
offline report when no provider is reachable.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "", "output style: styled, plain or machine (default: styled on a terminal)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newDiagnoseCmd(opts),
		newEngineTestCmd(opts),
		newKnowledgeCmd(opts),
	)
	return rootCmd
}

// init loads config, builds the logger and picks the output level.
func (o *globalOptions) init(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	o.cfg = cfg

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	o.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.LogDir,
		Service: cfg.Telemetry.ServiceName,
		JSON:    cfg.Logging.JSON,
		Output:  cmd.ErrOrStderr(),
	})

	outLevel := ux.DefaultLevel(os.Stdout)
	if o.output != "" {
		l, ok := ux.ParseLevel(o.output)
		if !ok {
			return fmt.Errorf("unknown --output %q (want styled, plain or machine)", o.output)
		}
		outLevel = l
	}
	o.printer = ux.NewPrinter(cmd.OutOrStdout(), outLevel)
	return nil
}
