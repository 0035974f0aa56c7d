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

func newKnowledgeCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Show knowledge base collection sizes and load warnings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats := newEngine(opts.cfg, opts.logger.Slog()).Store().Stats()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			p := opts.printer
			p.Title("Knowledge base")
			p.Field("Source", stats.Source)
			p.Field("Components", stats.Components)
			p.Field("Protection rules", stats.ProtectionRules)
			p.Field("Failure patterns", stats.FailurePatterns)
			p.Field("Safety protocols", stats.SafetyProtocols)
			if len(stats.Warnings) == 0 {
				p.Success("All collections loaded")
			}
			for _, w := range stats.Warnings {
				p.Warning(w)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}
