// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
package policy_engine

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Confidence grades a hypothesis. It is rendered as a bracketed token at the
// start of every hypothesis line, e.g. "[PROBABLE]".
type Confidence string

const (
	Confirmed    Confidence = "CONFIRMED"
	Probable     Confidence = "PROBABLE"
	Unverifiable Confidence = "UNVERIFIABLE"
)

// ConfidenceLevels lists the accepted confidence tokens, strongest first.
var ConfidenceLevels = []Confidence{Confirmed, Probable, Unverifiable}

// Token returns the bracketed form used in reports.
func (c Confidence) Token() string { return "[" + string(c) + "]" }

// Valid reports whether c is one of ConfidenceLevels.
func (c Confidence) Valid() bool {
	for _, lvl := range ConfidenceLevels {
		if c == lvl {
			return true
		}
	}
	return false
}

// Mandatory report sections, in canonical order.
const (
	SectionObservations = "Observations"
	SectionComponents   = "Components Involved"
	SectionHypotheses   = "Hypotheses"
	SectionChecks       = "Operational Checks"
	SectionRisks        = "Real Risks"
	SectionNextStep     = "Next Step"
)

// Sections is the caller-visible report schema. Every returned answer carries
// each title, followed by a colon, on its own line.
var Sections = []string{
	SectionObservations,
	SectionComponents,
	SectionHypotheses,
	SectionChecks,
	SectionRisks,
	SectionNextStep,
}

// PolicyFile mirrors report_policy.yaml.
type PolicyFile struct {
	Version             int            `yaml:"version"`
	Persona             string         `yaml:"persona"`
	ReliabilityProtocol string         `yaml:"reliability_protocol"`
	HardSafetyRules     []string       `yaml:"hard_safety_rules"`
	GoldenRules         []string       `yaml:"golden_rules"`
	BannedPhrases       []BannedPhrase `yaml:"banned_phrases"`
}

// BannedPhrase is a low-information phrase that must never reach a user.
type BannedPhrase struct {
	Id              string         `yaml:"id"`
	Phrase          string         `yaml:"phrase"`
	Language        string         `yaml:"language"`
	compiledPattern *regexp.Regexp `yaml:"-"`
}

// CompileRegexes builds a case-insensitive, whitespace-tolerant matcher for
// every banned phrase.
func (p *PolicyFile) CompileRegexes() error {
	for i := range p.BannedPhrases {
		phrase := &p.BannedPhrases[i]
		words := strings.Fields(phrase.Phrase)
		if len(words) == 0 {
			return fmt.Errorf("banned phrase %q is empty", phrase.Id)
		}
		for j, w := range words {
			words[j] = regexp.QuoteMeta(w)
		}
		expr := `(?i)` + strings.Join(words, `\s+`)
		re, err := regexp.Compile(expr)
		if err != nil {
			return fmt.Errorf("failed to compile the regex %s: %w", expr, err)
		}
		phrase.compiledPattern = re
	}
	return nil
}

// UnmarshalYAML rejects a policy without a persona, so a truncated file is
// caught at startup rather than producing an empty system prompt.
func (p *PolicyFile) UnmarshalYAML(value *yaml.Node) error {
	type raw PolicyFile
	var r raw
	if err := value.Decode(&r); err != nil {
		return err
	}
	if strings.TrimSpace(r.Persona) == "" {
		return fmt.Errorf("policy file has no persona")
	}
	*p = PolicyFile(r)
	return nil
}

// ScanFinding is one banned phrase occurrence.
type ScanFinding struct {
	LineNumber     int    `json:"line_number"`
	MatchedContent string `json:"matched_content"`
	PhraseId       string `json:"phrase_id"`
	Phrase         string `json:"phrase"`
	Language       string `json:"language"`
}
