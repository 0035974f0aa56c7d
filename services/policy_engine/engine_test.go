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
	"strings"
	"testing"
)

func newTestEngine(t *testing.T) *PolicyEngine {
	t.Helper()
	engine, err := NewPolicyEngine()
	if err != nil {
		t.Fatalf("Failed to initialize engine: %v", err)
	}
	return engine
}

func TestNewPolicyEngineFromBytes_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not yaml", raw: "persona: [unterminated"},
		{name: "no persona", raw: "golden_rules: [a]\n"},
		{name: "empty banned phrase", raw: "persona: p\nbanned_phrases:\n  - id: X\n    phrase: '   '\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewPolicyEngineFromBytes([]byte(tc.raw)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestSystemInstructions(t *testing.T) {
	engine := newTestEngine(t)

	prompt := engine.SystemInstructions("", "  ")
	for _, title := range Sections {
		if !strings.Contains(prompt, "- "+title+":") {
			t.Errorf("prompt is missing section %q", title)
		}
	}
	for _, rule := range engine.Policy.HardSafetyRules {
		if !strings.Contains(prompt, rule) {
			t.Errorf("prompt is missing hard rule %q", rule)
		}
	}
	if !strings.Contains(prompt, "(none)") {
		t.Error("empty context blocks should render as (none)")
	}

	withContext := engine.SystemInstructions("BLOCK A", "BLOCK B")
	if strings.Contains(withContext, "(none)") {
		t.Error("(none) must not appear when context is present")
	}
	if !strings.Contains(withContext, "BLOCK A\n\nBLOCK B") {
		t.Error("context blocks should be separated by a blank line")
	}
}

func TestPostcheck_EmptyTextGetsFullSchema(t *testing.T) {
	engine := newTestEngine(t)

	result := engine.Postcheck("")
	report := ParseReport(result.Text)

	if len(report.Order) != len(Sections) {
		t.Fatalf("expected %d sections, got %v", len(Sections), report.Order)
	}
	for i, title := range Sections {
		if report.Order[i] != title {
			t.Errorf("section %d: expected %q, got %q", i, title, report.Order[i])
		}
		if len(report.Sections[title].Bullets()) == 0 {
			t.Errorf("section %q has no bullet", title)
		}
	}
	if !result.ConfidenceInjected {
		t.Error("expected confidence injection")
	}
	hyp := report.Sections[SectionHypotheses].Body
	if len(hyp) != 1 || hyp[0] != NoHypothesisBullet {
		t.Errorf("placeholder should be replaced by the default hypothesis, got %v", hyp)
	}
}

func TestPostcheck_ProseWithoutSections(t *testing.T) {
	engine := newTestEngine(t)

	input := "The RCD trips because of a leak.\r\nMeasure insulation."
	result := engine.Postcheck(input)

	if !strings.HasPrefix(result.Text, "The RCD trips because of a leak.\nMeasure insulation.") {
		t.Errorf("original text must be kept first, got %q", result.Text)
	}
	if len(result.AddedSections) != len(Sections) {
		t.Errorf("expected all sections added, got %v", result.AddedSections)
	}
	if strings.Count(result.Text, "Observations:") != 1 {
		t.Error("Observations heading should appear exactly once")
	}
}

func TestPostcheck_CompleteAnswerUnchanged(t *testing.T) {
	engine := newTestEngine(t)

	input := strings.Join([]string{
		"**Observations:**",
		"- RCD trips when the button is pressed.",
		"Components Involved:",
		"- RCD, contactor KM1",
		"## HYPOTHESES:",
		"- [PROBABLE] Leakage in the outdoor luminaire",
		"Operational Checks:",
		"1) Megohmmeter 500V DC between L/N and PE, expect >1MΩ",
		"Real Risks:",
		"- Water near live parts",
		"Next Step:",
		"- Isolate the outdoor line and measure insulation.",
	}, "\n")

	result := engine.Postcheck(input)
	if result.Padded() {
		t.Fatalf("complete answer should not be padded: %+v", result)
	}
	if result.Text != input {
		t.Errorf("text changed:\n%s", result.Text)
	}
}

func TestPostcheck_InjectsUnderExistingHypotheses(t *testing.T) {
	engine := newTestEngine(t)

	input := strings.Join([]string{
		"Observations:",
		"- x",
		"Components Involved:",
		"- y",
		"Hypotheses:",
		"- Leak in the box",
		"Operational Checks:",
		"- z",
		"Real Risks:",
		"- r",
		"Next Step:",
		"- n",
	}, "\n")

	result := engine.Postcheck(input)
	if len(result.AddedSections) != 0 {
		t.Errorf("no section should be added, got %v", result.AddedSections)
	}
	lines := strings.Split(result.Text, "\n")
	if lines[5] != NoHypothesisBullet {
		t.Errorf("expected default hypothesis right under the heading, got %q", lines[5])
	}
	if lines[6] != "- Leak in the box" {
		t.Errorf("existing hypothesis should follow, got %q", lines[6])
	}
}

func TestPostcheck_BannedPhrasesFlaggedNotRemoved(t *testing.T) {
	engine := newTestEngine(t)

	input := "Observations:\n- It could  be anything.\n- Potrebbe essere QUALSIASI cosa."
	result := engine.Postcheck(input)

	if !strings.Contains(result.Text, "It could  be anything.") {
		t.Error("banned phrase must not be removed")
	}
	ids := map[string]int{}
	for _, f := range result.Findings {
		ids[f.PhraseId]++
	}
	if ids["BP-EN-01"] != 1 || ids["BP-IT-01"] != 1 {
		t.Errorf("unexpected findings: %+v", result.Findings)
	}
	if result.Findings[0].LineNumber != 2 {
		t.Errorf("expected line 2, got %d", result.Findings[0].LineNumber)
	}
}

func TestScanBannedPhrases_Clean(t *testing.T) {
	engine := newTestEngine(t)
	if findings := engine.ScanBannedPhrases("Measure IN and OUT under load."); len(findings) != 0 {
		t.Errorf("expected no findings, got %+v", findings)
	}
}

func TestExtractConfidence(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Confidence
		found bool
	}{
		{
			name:  "hypotheses section wins",
			input: "Observations:\n- [CONFIRMED] reading\nHypotheses:\n- [probable] leak",
			want:  Probable,
			found: true,
		},
		{
			name:  "anywhere fallback",
			input: "free text [UNVERIFIABLE] maybe",
			want:  Unverifiable,
			found: true,
		},
		{
			name:  "none",
			input: "Hypotheses:\n- leak",
			found: false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractConfidence(tc.input)
			if ok != tc.found || got != tc.want {
				t.Errorf("ExtractConfidence() = %q, %v; want %q, %v", got, ok, tc.want, tc.found)
			}
		})
	}
}
