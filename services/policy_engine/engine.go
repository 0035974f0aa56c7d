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
	"strings"

	"github.com/wirepro/wirepro/services/policy_engine/enforcement"
	"gopkg.in/yaml.v3"
)

// PolicyEngine holds the loaded report policy: the system instructions given
// to every provider and the banned phrases checked on every answer.
type PolicyEngine struct {
	Policy PolicyFile
}

// NewPolicyEngine initializes a PolicyEngine from the policy embedded in the
// binary via the enforcement package.
//
// It performs the following operations:
// 1. Unmarshals the embedded YAML data.
// 2. Compiles a matcher for every banned phrase.
//
// Returns an error if the embedded YAML is malformed.
func NewPolicyEngine() (*PolicyEngine, error) {
	return NewPolicyEngineFromBytes(enforcement.ReportPolicy)
}

// NewPolicyEngineFromBytes is NewPolicyEngine for an arbitrary policy
// document. Used by tests and by deployments that ship their own policy.
func NewPolicyEngineFromBytes(raw []byte) (*PolicyEngine, error) {
	var policyFile PolicyFile
	if err := yaml.Unmarshal(raw, &policyFile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the policy file: %w", err)
	}
	if err := policyFile.CompileRegexes(); err != nil {
		return nil, fmt.Errorf("failed to compile a banned phrase: %w", err)
	}
	return &PolicyEngine{Policy: policyFile}, nil
}

// SystemInstructions renders the system prompt sent ahead of every provider
// call.
//
// # Description
//
// The prompt carries the persona, the reliability protocol, the six
// mandatory section titles with the confidence tokens, the hard safety and
// golden rules, and finally the context blocks. Empty blocks are skipped;
// when none remain the context reads "(none)".
//
// # Inputs
//
//   - contextBlocks: pre-rendered context (diagnostic pre-analysis,
//     knowledge excerpts).
//
// # Outputs
//
//   - string: the complete system instructions.
func (e *PolicyEngine) SystemInstructions(contextBlocks ...string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(e.Policy.Persona))
	b.WriteString("\n")
	b.WriteString("Reliability protocol: ")
	b.WriteString(strings.TrimSpace(e.Policy.ReliabilityProtocol))
	b.WriteString("\n")
	b.WriteString("MANDATORY format: a report with these sections, in this order (title followed by a colon):\n")
	for _, title := range Sections {
		b.WriteString("- " + title + ":\n")
	}
	tokens := make([]string, len(ConfidenceLevels))
	for i, lvl := range ConfidenceLevels {
		tokens[i] = lvl.Token()
	}
	b.WriteString("Every line under " + SectionHypotheses + " starts with one of: " + strings.Join(tokens, ", ") + ".\n")

	b.WriteString("\nHard rules:\n")
	for _, rule := range e.Policy.HardSafetyRules {
		b.WriteString("- " + rule + "\n")
	}
	for _, rule := range e.Policy.GoldenRules {
		b.WriteString("- " + rule + "\n")
	}

	b.WriteString("\nContext (knowledge base), if present:\n")
	var blocks []string
	for _, block := range contextBlocks {
		if s := strings.TrimSpace(block); s != "" {
			blocks = append(blocks, s)
		}
	}
	if len(blocks) == 0 {
		b.WriteString("(none)\n")
	} else {
		b.WriteString(strings.Join(blocks, "\n\n"))
		b.WriteString("\n")
	}
	return b.String()
}

// ScanBannedPhrases checks every line of content against every banned
// phrase and returns one finding per occurrence. The content is not altered.
func (e *PolicyEngine) ScanBannedPhrases(content string) []ScanFinding {
	var findings []ScanFinding
	lines := strings.Split(content, "\n")
	for lineNum, line := range lines {
		for _, phrase := range e.Policy.BannedPhrases {
			if phrase.compiledPattern == nil {
				continue
			}
			for _, match := range phrase.compiledPattern.FindAllString(line, -1) {
				findings = append(findings, ScanFinding{
					LineNumber:     lineNum + 1,
					MatchedContent: strings.TrimSpace(match),
					PhraseId:       phrase.Id,
					Phrase:         phrase.Phrase,
					Language:       phrase.Language,
				})
			}
		}
	}
	return findings
}
