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
	"regexp"
	"strings"
)

// Placeholder bullets written by Postcheck.
const (
	PlaceholderBullet   = "- (to be completed)"
	NoHypothesisBullet  = "- [UNVERIFIABLE] No hypothesis can be formulated with the available data."
	placeholderFragment = "(to be completed)"
)

// confidenceTokenRe matches any bracketed confidence token.
var confidenceTokenRe = regexp.MustCompile(`(?i)\[(CONFIRMED|PROBABLE|UNVERIFIABLE)\]`)

// PostcheckResult is the outcome of Postcheck.
type PostcheckResult struct {
	Text               string        `json:"text"`
	AddedSections      []string      `json:"added_sections"`
	ConfidenceInjected bool          `json:"confidence_injected"`
	Findings           []ScanFinding `json:"findings"`
}

// Padded reports whether Postcheck had to change the text.
func (r PostcheckResult) Padded() bool {
	return len(r.AddedSections) > 0 || r.ConfidenceInjected
}

// Postcheck enforces the report schema on a candidate answer.
//
// # Description
//
// Every mandatory section missing from the parsed answer is appended, in
// canonical order, as a heading followed by a placeholder bullet. If no
// bracketed confidence token appears anywhere, a default UNVERIFIABLE line is
// inserted right under the Hypotheses heading (replacing a lone placeholder).
// Finally the text is scanned for banned phrases; findings are reported but
// never change the text.
//
// # Inputs
//
//   - text: the raw provider answer.
//
// # Outputs
//
//   - PostcheckResult: the conforming text plus what was changed and flagged.
func (e *PolicyEngine) Postcheck(text string) PostcheckResult {
	out := strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	result := PostcheckResult{AddedSections: []string{}}

	report := ParseReport(out)
	var b strings.Builder
	b.WriteString(out)
	for _, title := range Sections {
		if report.Has(title) {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(title + ":\n" + PlaceholderBullet)
		result.AddedSections = append(result.AddedSections, title)
	}
	out = b.String()

	if !confidenceTokenRe.MatchString(out) {
		out = injectNoHypothesis(out)
		result.ConfidenceInjected = true
	}

	result.Text = out
	result.Findings = e.ScanBannedPhrases(out)
	return result
}

// injectNoHypothesis places NoHypothesisBullet under the Hypotheses heading.
func injectNoHypothesis(text string) string {
	report := ParseReport(text)
	section, ok := report.Sections[SectionHypotheses]
	if !ok {
		return text
	}
	lines := report.Lines
	at := section.Line + 1

	// A Hypotheses section holding only the placeholder gets it replaced.
	if len(section.Body) == 1 && strings.Contains(section.Body[0], placeholderFragment) {
		for i := at; i < len(lines); i++ {
			if strings.Contains(lines[i], placeholderFragment) {
				lines[i] = NoHypothesisBullet
				return strings.Join(lines, "\n")
			}
		}
	}

	merged := make([]string, 0, len(lines)+1)
	merged = append(merged, lines[:at]...)
	merged = append(merged, NoHypothesisBullet)
	merged = append(merged, lines[at:]...)
	return strings.Join(merged, "\n")
}

// ExtractConfidence returns the first confidence token of an answer, looking
// in the Hypotheses section first and in the whole text otherwise.
func ExtractConfidence(text string) (Confidence, bool) {
	report := ParseReport(text)
	if section, ok := report.Sections[SectionHypotheses]; ok {
		for _, line := range section.Body {
			if m := confidenceTokenRe.FindStringSubmatch(line); m != nil {
				return Confidence(strings.ToUpper(m[1])), true
			}
		}
	}
	if m := confidenceTokenRe.FindStringSubmatch(text); m != nil {
		return Confidence(strings.ToUpper(m[1])), true
	}
	return "", false
}
