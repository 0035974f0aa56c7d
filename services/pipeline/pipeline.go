// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline answers one diagnostic request end to end.
//
// # Description
//
// A request runs as a single sequential pipeline:
//
//  1. The diagnostic engine analyzes the message against the knowledge base.
//  2. The policy engine renders the system instructions around two context
//     blocks: the automatic pre-analysis and the matching knowledge entries.
//  3. The provider cascade produces an answer.
//  4. When every provider failed for connectivity reasons on a technical
//     question, the locally rendered standalone report is served instead.
//  5. Provider answers go through the postcheck so the six mandatory
//     sections and a confidence token are always present.
//
// The pipeline never touches storage; callers persist the Result.
//
// # Thread Safety
//
// A Pipeline holds no mutable state and may serve concurrent requests.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wirepro/wirepro/services/diagnostic"
	"github.com/wirepro/wirepro/services/llm"
	"github.com/wirepro/wirepro/services/policy_engine"
)

// Identity reported when the answer was built without any provider.
const (
	OfflineProvider = "offline-engine"
	OfflineModel    = "wirepro-knowledge-base"
)

// DefaultImagePrompt replaces the user text of image-only requests.
const DefaultImagePrompt = "Analyze the photo and describe what you see."

// ErrEmptyRequest is returned when a request has neither text nor image.
var ErrEmptyRequest = errors.New("request has neither a message nor an image")

var tracer = otel.Tracer("wirepro.pipeline")

// Recorder receives pipeline measurements. *observability.Metrics
// satisfies it.
type Recorder interface {
	RecordAnswer(domain, provider string, fallback, offline bool, seconds float64)
	RecordAttempt(provider, kind string)
	RecordBannedPhrase(phraseID string)
	RecordPaddedSection(section string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAnswer(string, string, bool, bool, float64) {}
func (nopRecorder) RecordAttempt(string, string)                     {}
func (nopRecorder) RecordBannedPhrase(string)                        {}
func (nopRecorder) RecordPaddedSection(string)                       {}

// Request is one user turn.
type Request struct {
	Message  string
	Image    *llm.Image
	Provider string
	History  []llm.Turn
	Params   llm.GenerationParams
}

// HasImage reports whether a non-empty image is attached.
func (r Request) HasImage() bool { return r.Image != nil && len(r.Image.Data) > 0 }

// Result is the answer plus everything the orchestration layer stores or
// exposes about how it was produced.
type Result struct {
	Reply         string                      `json:"reply"`
	Provider      string                      `json:"provider"`
	Model         string                      `json:"model"`
	FallbackUsed  bool                        `json:"fallback_used"`
	Offline       bool                        `json:"offline"`
	Confidence    policy_engine.Confidence    `json:"confidence,omitempty"`
	Diagnostic    *diagnostic.Report          `json:"diagnostic"`
	Summary       string                      `json:"summary"`
	Attempts      []llm.Attempt               `json:"attempts"`
	AddedSections []string                    `json:"added_sections"`
	Findings      []policy_engine.ScanFinding `json:"findings"`
	ContextBlocks []string                    `json:"-"`
	Duration      time.Duration               `json:"duration"`
}

// Warnings renders the banned phrase findings as short messages.
func (r *Result) Warnings() []string {
	out := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		out = append(out, fmt.Sprintf("%s: line %d contains %q", f.PhraseId, f.LineNumber, f.MatchedContent))
	}
	return out
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Engine   *diagnostic.Engine
	Policy   *policy_engine.PolicyEngine
	Cascade  *llm.Cascade
	Recorder Recorder
	Logger   *slog.Logger
	// Defaults fill the generation parameters a request leaves unset.
	Defaults llm.GenerationParams
}

// Pipeline wires analysis, prompting, generation and validation.
type Pipeline struct {
	engine   *diagnostic.Engine
	policy   *policy_engine.PolicyEngine
	cascade  *llm.Cascade
	recorder Recorder
	logger   *slog.Logger
	defaults llm.GenerationParams
}

// New validates deps and returns a Pipeline.
func New(deps Deps) (*Pipeline, error) {
	switch {
	case deps.Engine == nil:
		return nil, errors.New("pipeline: diagnostic engine is required")
	case deps.Policy == nil:
		return nil, errors.New("pipeline: policy engine is required")
	case deps.Cascade == nil:
		return nil, errors.New("pipeline: provider cascade is required")
	}
	p := &Pipeline{
		engine:   deps.Engine,
		policy:   deps.Policy,
		cascade:  deps.Cascade,
		recorder: deps.Recorder,
		logger:   deps.Logger,
		defaults: deps.Defaults,
	}
	if p.recorder == nil {
		p.recorder = nopRecorder{}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p, nil
}

// Engine returns the diagnostic engine.
func (p *Pipeline) Engine() *diagnostic.Engine { return p.engine }

// Providers lists the configured provider names in cascade order.
func (p *Pipeline) Providers() []string { return p.cascade.Available() }

// Answer runs one request through the pipeline.
//
// # Description
//
// The report is always computed. Provider failures fall through the
// cascade; when the last failure is a connectivity error and the question
// is technical, the standalone report is returned with Provider set to
// OfflineProvider. That answer is complete by construction, so it only gets
// the banned phrase scan; provider answers get the full postcheck.
//
// # Inputs
//
//   - ctx: request scope. Cancelling it stops the cascade.
//   - req: the user turn.
//
// # Outputs
//
//   - *Result: the answer and its provenance.
//   - error: ErrEmptyRequest, llm.ErrNoProviders, or a *llm.CascadeError
//     when no offline answer applies.
func (p *Pipeline) Answer(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	message := strings.TrimSpace(req.Message)
	if message == "" && !req.HasImage() {
		return nil, ErrEmptyRequest
	}

	ctx, span := tracer.Start(ctx, "Pipeline.Answer")
	defer span.End()

	userText := message
	if userText == "" {
		userText = DefaultImagePrompt
	}

	report := p.engine.Analyze(diagnostic.Input{Message: message, HasImage: req.HasImage()})
	span.SetAttributes(
		attribute.String("diagnostic.domain", string(report.Domain)),
		attribute.Bool("diagnostic.technical", report.IsTechnical),
		attribute.Bool("diagnostic.dangerous", report.IsDangerous),
		attribute.StringSlice("diagnostic.patterns", report.MatchedPatterns),
		attribute.StringSlice("diagnostic.rules", report.MatchedRules),
	)

	blocks := contextBlocks(report, diagnostic.KnowledgeContext(p.engine.Store(), userText))
	result := &Result{
		Diagnostic:    report,
		Summary:       report.Summary(),
		ContextBlocks: blocks,
		AddedSections: []string{},
	}

	outcome, err := p.cascade.Run(ctx, req.Provider, llm.Request{
		SystemInstructions: p.policy.SystemInstructions(blocks...),
		History:            req.History,
		UserText:           userText,
		Image:              req.Image,
		Params:             p.withDefaults(req.Params),
	})

	if err != nil {
		var cascadeErr *llm.CascadeError
		if errors.As(err, &cascadeErr) {
			result.Attempts = cascadeErr.Attempts
			p.recordAttempts(cascadeErr.Attempts)
		}
		if cascadeErr == nil || !cascadeErr.Network() || !report.IsTechnical {
			span.RecordError(err)
			span.SetStatus(codes.Error, "no answer")
			p.logger.Error("No answer produced",
				"domain", report.Domain,
				"technical", report.IsTechnical,
				"error", err)
			return nil, err
		}

		p.logger.Warn("All providers unreachable, serving offline report",
			"domain", report.Domain,
			"attempts", len(cascadeErr.Attempts),
			"last_error", cascadeErr.Last)
		result.Reply = diagnostic.StandaloneView(report)
		result.Provider = OfflineProvider
		result.Model = OfflineModel
		result.Offline = true
		result.Findings = p.policy.ScanBannedPhrases(result.Reply)
	} else {
		result.Attempts = outcome.Attempts
		p.recordAttempts(outcome.Attempts)
		result.Provider = outcome.Provider
		result.Model = outcome.Model
		result.FallbackUsed = outcome.FallbackUsed

		checked := p.policy.Postcheck(outcome.Response.Text)
		result.Reply = checked.Text
		result.AddedSections = checked.AddedSections
		result.Findings = checked.Findings
		if checked.Padded() {
			p.logger.Info("Answer padded by postcheck",
				"provider", result.Provider,
				"added_sections", checked.AddedSections,
				"confidence_injected", checked.ConfidenceInjected)
		}
		for _, title := range checked.AddedSections {
			p.recorder.RecordPaddedSection(title)
		}
	}

	for _, f := range result.Findings {
		p.logger.Warn("Banned phrase in answer",
			"phrase_id", f.PhraseId,
			"line", f.LineNumber,
			"matched", f.MatchedContent,
			"provider", result.Provider)
		p.recorder.RecordBannedPhrase(f.PhraseId)
	}

	if c, ok := policy_engine.ExtractConfidence(result.Reply); ok {
		result.Confidence = c
	}
	result.Duration = time.Since(start)
	p.recorder.RecordAnswer(string(report.Domain), result.Provider, result.FallbackUsed, result.Offline, result.Duration.Seconds())

	span.SetAttributes(
		attribute.String("llm.provider", result.Provider),
		attribute.Bool("llm.fallback", result.FallbackUsed),
		attribute.Bool("pipeline.offline", result.Offline),
	)
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// withDefaults fills unset fields of params from the pipeline defaults.
func (p *Pipeline) withDefaults(params llm.GenerationParams) llm.GenerationParams {
	if params.Temperature == nil {
		params.Temperature = p.defaults.Temperature
	}
	if params.TopP == nil {
		params.TopP = p.defaults.TopP
	}
	if params.MaxTokens == nil {
		params.MaxTokens = p.defaults.MaxTokens
	}
	if params.Stop == nil {
		params.Stop = p.defaults.Stop
	}
	return params
}

func (p *Pipeline) recordAttempts(attempts []llm.Attempt) {
	for _, a := range attempts {
		p.recorder.RecordAttempt(a.Provider, string(a.Kind))
	}
}

// contextBlocks keeps the non-empty blocks in order.
func contextBlocks(report *diagnostic.Report, knowledgeBlock string) []string {
	var blocks []string
	if view := diagnostic.ContextView(report); view != "" {
		blocks = append(blocks, view)
	}
	if knowledgeBlock != "" {
		blocks = append(blocks, knowledgeBlock)
	}
	return blocks
}
