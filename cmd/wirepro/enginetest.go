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
	"github.com/spf13/cobra"
)

func newEngineTestCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "engine-test",
		Short: "Run the built-in diagnostic engine test case",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result := newEngine(opts.cfg, opts.logger.Slog()).SelfTest()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			p := opts.printer
			p.Title("Engine self-test")
			p.Field("Input", result.Input.Message)
			printReportFields(p, result.Report)
			p.Box("Context view", result.ContextView, false)
			p.Report(result.StandaloneView)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}
