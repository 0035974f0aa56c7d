// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diagnostic

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/wirepro/wirepro/services/knowledge"
)

// Report composition limits.
const (
	MaxVerifications     = 10
	checksPerPattern     = 4
	stepsPerRule         = 2
	keywordObservations  = 6
	riskRuleTextMaxRunes = 130
)

// Fixed report lines.
const (
	VoltageCheck    = "MANDATORY: measure voltage IN and OUT of every protection under load (multimeter VAC)."
	InsulationCheck = "MANDATORY: measure cable insulation with a 500V DC megohmmeter (>1MΩ required)."
	NeutralPECheck  = "Verify that N and PE are not joined downstream of the main equipotential node."
	GasketCheck     = "Verify the perimeter gasket is intact (elastic, continuous, compressed)."
	GlandCheck      = "Verify cable glands are tightened and unused holes are closed with blind caps."

	ImmediateDangerRisk = "IMMEDIATE DANGER: de-energize before any intervention. Wait 5 minutes."
	BurningSmellRisk    = "Do not reopen until the burning smell is gone."
	DeEnergizeRisk      = "De-energize and verify absence of voltage with a multimeter before opening the panel."

	ConclusionNonTechnical = "Non-technical request: answer freely."
	ConclusionDangerous    = "STOP: dangerous condition. Safety before diagnosis."
	ConclusionGeneric      = "Generic technical question. Ask for specifics: brand/model, measurements, photo."
)

// Input is one request to analyze.
type Input struct {
	Message  string `json:"message"`
	HasImage bool   `json:"has_image"`
}

// Report is the structured pre-analysis of one request. It is read-only
// once returned.
type Report struct {
	Domain          Domain       `json:"domain"`
	HasImage        bool         `json:"has_image"`
	IsTechnical     bool         `json:"is_technical"`
	IsDangerous     bool         `json:"is_dangerous"`
	MentionsVoltage bool         `json:"mentions_voltage"`
	MentionsRCD     bool         `json:"mentions_rcd"`
	MentionsOutdoor bool         `json:"mentions_outdoor"`
	MentionsMeasure bool         `json:"mentions_measurement"`
	MatchedKeywords []string     `json:"matched_keywords"`
	MatchedPatterns []string     `json:"matched_patterns"`
	MatchedRules    []string     `json:"matched_rules"`
	PatternScores   []int        `json:"pattern_scores"`
	RuleScores      []int        `json:"rule_scores"`
	Observations    []string     `json:"observations"`
	Hypotheses      []Hypothesis `json:"hypotheses"`
	Verifications   []string     `json:"verifications"`
	Risks           []string     `json:"risks"`
	Conclusion      string       `json:"conclusion"`
}

// Summary is a one-line digest of the report for logs and stored metadata.
func (r *Report) Summary() string {
	return fmt.Sprintf("domain=%s technical=%t dangerous=%t patterns=%s rules=%s",
		r.Domain, r.IsTechnical, r.IsDangerous,
		strings.Join(r.MatchedPatterns, ","), strings.Join(r.MatchedRules, ","))
}

// Engine scores requests against a knowledge Store.
type Engine struct {
	store  *knowledge.Store
	logger *slog.Logger
}

// NewEngine returns an Engine over store. logger may be nil.
func NewEngine(store *knowledge.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger}
}

// Store returns the knowledge base the engine reads from.
func (e *Engine) Store() *knowledge.Store { return e.store }

// Analyze builds the Report for in.
//
// # Description
//
// Analyze never fails and does no I/O. Steps:
//  1. Normalize the message and raise the domain flags from the keyword
//     families.
//  2. Rank failure patterns and protection rules; when outdoor, RCD or
//     danger signals are present the lockout/tagout and general safety
//     rules are forced in.
//  3. Compose observations, hypotheses, verifications (capped at
//     MaxVerifications), risks and the conclusion.
//
// # Inputs
//
//   - in: the message and whether an image is attached.
//
// # Outputs
//
//   - *Report: the pre-analysis. Every list is non-nil.
func (e *Engine) Analyze(in Input) *Report {
	message := strings.TrimSpace(in.Message)
	q := NewQuery(message)

	r := &Report{
		Domain:          ClassifyDomain(message),
		HasImage:        in.HasImage,
		IsTechnical:     containsAny(q.Norm, techKeywords),
		IsDangerous:     containsAny(q.Norm, dangerKeywords),
		MentionsVoltage: containsAny(q.Norm, voltageKeywords),
		MentionsRCD:     containsAny(q.Norm, rcdKeywords),
		MentionsOutdoor: containsAny(q.Norm, outdoorKeywords),
		MentionsMeasure: containsAny(q.Norm, measurementKeywords),
		MatchedKeywords: findMatches(q.Norm, techKeywords),
		MatchedPatterns: []string{},
		MatchedRules:    []string{},
		PatternScores:   []int{},
		RuleScores:      []int{},
		Observations:    []string{},
		Hypotheses:      []Hypothesis{},
		Verifications:   []string{},
		Risks:           []string{},
	}

	patterns := MatchPatterns(e.store.FailurePatterns(), q)
	rules := MatchRules(e.store.ProtectionRules(), q)
	if r.MentionsOutdoor || r.MentionsRCD || r.IsDangerous {
		rules = forceRules(rules, e.store)
	}

	for _, m := range patterns {
		e.logger.Debug("Failure pattern matched", "pattern_id", m.Entry.ID, "score", m.Score)
		r.MatchedPatterns = append(r.MatchedPatterns, m.Entry.ID)
		r.PatternScores = append(r.PatternScores, m.Score)
	}
	for _, m := range rules {
		e.logger.Debug("Protection rule matched", "rule_id", m.Entry.ID, "score", m.Score, "forced", m.Forced)
		r.MatchedRules = append(r.MatchedRules, m.Entry.ID)
		r.RuleScores = append(r.RuleScores, m.Score)
	}

	r.composeObservations(patterns)
	r.composeVerifications(patterns, rules)
	r.composeRisks(rules)
	r.composeConclusion(len(patterns))
	return r
}

func (r *Report) composeObservations(patterns []Match[knowledge.FailurePattern]) {
	if n := len(r.MatchedKeywords); n > 0 {
		kws := r.MatchedKeywords[:min(n, keywordObservations)]
		r.Observations = append(r.Observations, "Technical keywords detected: "+strings.Join(kws, ", ")+".")
	}
	if r.HasImage {
		r.Observations = append(r.Observations, "Image attached: analyze the visible components and their condition.")
	}
	if r.IsDangerous {
		r.Observations = append(r.Observations, "WARNING: dangerous elements reported (burnt/smoke/sparks).")
	}
	if r.MentionsRCD {
		r.Observations = append(r.Observations, "RCD mentioned: leakage and insulation checks required.")
	}
	if r.MentionsOutdoor {
		r.Observations = append(r.Observations, "Outdoor box or panel mentioned: IP rating and sealing assessment required.")
	}
	if r.MentionsMeasure {
		r.Observations = append(r.Observations, "Electrical measurement requested: state instruments and measurement points.")
	}
	for _, m := range patterns {
		r.Observations = append(r.Observations, "Pattern identified: "+m.Entry.Symptom)
		r.Hypotheses = append(r.Hypotheses, BuildHypotheses(m.Entry)...)
	}
}

func (r *Report) composeVerifications(patterns []Match[knowledge.FailurePattern], rules []Match[knowledge.ProtectionRule]) {
	seen := make(map[string]struct{})
	add := func(step string) {
		if strings.TrimSpace(step) == "" {
			return
		}
		if _, dup := seen[step]; dup {
			return
		}
		seen[step] = struct{}{}
		r.Verifications = append(r.Verifications, step)
	}

	if r.MentionsVoltage {
		add(VoltageCheck)
	}
	if r.MentionsRCD {
		add(InsulationCheck)
		add(NeutralPECheck)
	}
	if r.MentionsOutdoor {
		add(GasketCheck)
		add(GlandCheck)
	}
	for _, m := range patterns {
		checks := m.Entry.Checks
		for _, c := range checks[:min(len(checks), checksPerPattern)] {
			add(c)
		}
	}
	for _, m := range rules {
		steps := m.Entry.VerificationSteps
		for _, s := range steps[:min(len(steps), stepsPerRule)] {
			add(s)
		}
	}

	if len(r.Verifications) > MaxVerifications {
		r.Verifications = r.Verifications[:MaxVerifications]
	}
}

func (r *Report) composeRisks(rules []Match[knowledge.ProtectionRule]) {
	if r.IsDangerous {
		r.Risks = append(r.Risks, ImmediateDangerRisk, BurningSmellRisk)
	}
	for _, m := range rules {
		if m.Entry.RiskLevel == knowledge.RiskHigh {
			r.Risks = append(r.Risks, "HIGH RISK - "+m.Entry.Title+": "+truncateRunes(m.Entry.Rule, riskRuleTextMaxRunes))
		}
	}
	if r.IsTechnical && len(r.Risks) == 0 {
		r.Risks = append(r.Risks, DeEnergizeRisk)
	}
}

func (r *Report) composeConclusion(patternCount int) {
	switch {
	case !r.IsTechnical:
		r.Conclusion = ConclusionNonTechnical
	case r.IsDangerous:
		r.Conclusion = ConclusionDangerous
	case patternCount > 0:
		r.Conclusion = fmt.Sprintf("%d failure pattern(s) identified. Guide the user through sequential checks.", patternCount)
	default:
		r.Conclusion = ConclusionGeneric
	}
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
