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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wirepro/wirepro/pkg/ux"
	"github.com/wirepro/wirepro/services/diagnostic"
	"github.com/wirepro/wirepro/services/llm"
	"github.com/wirepro/wirepro/services/pipeline"
)

type diagnoseOptions struct {
	ask       bool
	provider  string
	imagePath string
	asJSON    bool

	// providers replaces the configured providers. Set by tests.
	providers []llm.Provider
}

func newDiagnoseCmd(opts *globalOptions) *cobra.Command {
	d := &diagnoseOptions{}
	cmd := &cobra.Command{
		Use:   "diagnose [fault description]",
		Short: "Analyze a fault description",
		Long: `Runs the diagnostic engine on a fault description and prints the offline
report. With --ask the description goes through the provider cascade and the
validated six-section answer is printed instead.

Without arguments the description is read from stdin, or asked for
interactively when stdin is a terminal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagnose(cmd, opts, d, args)
		},
	}
	cmd.Flags().BoolVar(&d.ask, "ask", false, "send the question to the LLM providers")
	cmd.Flags().StringVar(&d.provider, "provider", "", "preferred provider for --ask (openai, anthropic, gemini, ollama)")
	cmd.Flags().StringVar(&d.imagePath, "image", "", "attach a photo (implies --ask)")
	cmd.Flags().BoolVar(&d.asJSON, "json", false, "print the result as JSON")
	return cmd
}

func runDiagnose(cmd *cobra.Command, opts *globalOptions, d *diagnoseOptions, args []string) error {
	ctx := cmd.Context()
	message, err := readFault(cmd, args)
	if err != nil {
		return err
	}

	var image *llm.Image
	if d.imagePath != "" {
		image, err = readImage(d.imagePath)
		if err != nil {
			return err
		}
	}
	if message == "" && image == nil {
		return errors.New("no fault description given")
	}

	logger := opts.logger.Slog()
	p := opts.printer

	if !d.ask && image == nil {
		engine := newEngine(opts.cfg, logger)
		report := engine.Analyze(diagnostic.Input{Message: message})
		if d.asJSON {
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"report":          report,
				"context_view":    diagnostic.ContextView(report),
				"standalone_view": diagnostic.StandaloneView(report),
			})
		}
		p.Title("Wire Pro offline report")
		printReportFields(p, report)
		p.Report(diagnostic.StandaloneView(report))
		return nil
	}

	rt, err := newRuntime(ctx, opts.cfg, logger, d.providers)
	if err != nil {
		return err
	}
	result, err := rt.pipeline.Answer(ctx, pipeline.Request{
		Message:  message,
		Image:    image,
		Provider: strings.ToLower(d.provider),
	})
	if err != nil {
		var cascadeErr *llm.CascadeError
		if errors.As(err, &cascadeErr) {
			for _, a := range cascadeErr.Attempts {
				p.Error(fmt.Sprintf("%s: %s", a.Provider, a.Error))
			}
		}
		return err
	}
	if d.asJSON {
		return writeJSON(cmd.OutOrStdout(), result)
	}

	p.Title("Wire Pro answer")
	p.Field("Provider", result.Provider)
	p.Field("Model", result.Model)
	p.Field("Fallback used", result.FallbackUsed)
	p.Field("Confidence", result.Confidence)
	if result.Offline {
		p.Warning("No provider reachable, showing the offline report")
	}
	if result.Diagnostic != nil && result.Diagnostic.IsDangerous {
		p.Box("Safety", "Dangerous condition reported. De-energize and lock out before any intervention.", true)
	}
	p.Report(result.Reply)
	for _, w := range result.Warnings() {
		p.Warning(w)
	}
	return nil
}

func printReportFields(p *ux.Printer, r *diagnostic.Report) {
	p.Field("Domain", r.Domain)
	p.Field("Technical", r.IsTechnical)
	p.Field("Dangerous", r.IsDangerous)
	p.Field("Patterns", strings.Join(r.MatchedPatterns, ", "))
	p.Field("Rules", strings.Join(r.MatchedRules, ", "))
}

// readFault joins args, else reads piped stdin, else prompts on a terminal.
func readFault(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.TrimSpace(strings.Join(args, " ")), nil
	}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && ux.IsTerminal(f) {
		return ux.AskFault(cmd.Context())
	}
	raw, err := io.ReadAll(io.LimitReader(in, 64*1024))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func readImage(path string) (*llm.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("%s is not an image (%s)", path, mime)
	}
	return &llm.Image{MIMEType: mime, Data: data}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
