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
	"strings"

	"github.com/wirepro/wirepro/services/policy_engine"
)

// View limits.
const (
	contextHypotheses     = 6
	contextVerifications  = 6
	offlineHypotheses     = 5
	offlineVerifications  = 5
	offlineRisks          = 3
	offlineComponentWords = 6
)

// OfflineFootnote closes every answer produced by StandaloneView.
const OfflineFootnote = "Note: answer generated locally (offline engine); no language model was reachable."

// ContextView renders r as a pre-analysis block for a language model.
//
// # Description
//
// Non-technical reports render as "" so nothing is injected. Otherwise the
// block lists observations, hypotheses with their confidence tokens,
// verifications, risks and the engine conclusion, and ends with an
// instruction naming the six mandatory section titles.
func ContextView(r *Report) string {
	if r == nil || !r.IsTechnical {
		return ""
	}

	lines := []string{"[WIRE PRO ENGINE - AUTOMATIC PRE-ANALYSIS]"}
	if r.IsDangerous {
		lines = append(lines, "", "!! DANGEROUS CONDITION - SAFETY FIRST !!")
	}
	lines = append(lines, "", "DOMAIN: "+string(r.Domain))

	if len(r.Observations) > 0 {
		lines = append(lines, "", "PRELIMINARY OBSERVATIONS:")
		lines = appendBullets(lines, r.Observations)
	}
	if len(r.Hypotheses) > 0 {
		lines = append(lines, "", "HYPOTHESES (to be confirmed by measurement):")
		for _, h := range r.Hypotheses[:min(len(r.Hypotheses), contextHypotheses)] {
			lines = append(lines, "- "+h.Line())
		}
	}
	if len(r.Verifications) > 0 {
		lines = append(lines, "", "CHECKS TO PROPOSE:")
		lines = appendBullets(lines, r.Verifications[:min(len(r.Verifications), contextVerifications)])
	}
	if len(r.Risks) > 0 {
		lines = append(lines, "", "RISKS / SAFETY:")
		lines = appendBullets(lines, r.Risks)
	}

	lines = append(lines, "",
		"ENGINE CONCLUSION: "+r.Conclusion,
		"INSTRUCTION: use this pre-analysis as the structural base. The mandatory answer format is: "+
			strings.Join(policy_engine.Sections, " / ")+".")
	return strings.Join(lines, "\n")
}

// StandaloneView renders r as a complete six-section answer that needs no
// language model. Empty buckets get default guidance so every section has
// at least one line.
func StandaloneView(r *Report) string {
	var lines []string
	heading := func(title string) {
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, title+":")
	}

	heading(policy_engine.SectionObservations)
	if len(r.Observations) > 0 {
		lines = appendBullets(lines, r.Observations)
	} else {
		lines = append(lines, "- Technical request received (local analysis, no language model reachable).")
	}

	heading(policy_engine.SectionComponents)
	if n := len(r.MatchedKeywords); n > 0 {
		lines = append(lines, "- "+strings.Join(r.MatchedKeywords[:min(n, offlineComponentWords)], ", ")+" (from keywords).")
	} else {
		lines = append(lines, "- No specific component identified automatically.")
	}

	heading(policy_engine.SectionHypotheses)
	if len(r.Hypotheses) > 0 {
		for _, h := range r.Hypotheses[:min(len(r.Hypotheses), offlineHypotheses)] {
			lines = append(lines, "- "+h.Line())
		}
	} else {
		lines = append(lines,
			"- "+policy_engine.Unverifiable.Token()+" Insufficient data for a precise hypothesis.",
			"  Provide brand/model, measurements already taken and a photo of the component.")
	}

	heading(policy_engine.SectionChecks)
	if len(r.Verifications) > 0 {
		for i, v := range r.Verifications[:min(len(r.Verifications), offlineVerifications)] {
			lines = append(lines, fmt.Sprintf("%d) %s", i+1, v))
		}
	} else {
		lines = append(lines,
			"1) Instrument: multimeter VAC. Measure voltage IN and OUT of the RCD.",
			"2) Instrument: 500V megohmmeter. Measure cable insulation (expected >1MΩ).",
			"3) State brand/model and what has already been checked.")
	}

	heading(policy_engine.SectionRisks)
	if len(r.Risks) > 0 {
		lines = appendBullets(lines, r.Risks[:min(len(r.Risks), offlineRisks)])
	} else {
		lines = append(lines, "- De-energize and verify absence of voltage before any intervention.")
	}

	heading(policy_engine.SectionNextStep)
	if len(r.Verifications) > 0 {
		lines = append(lines, "- "+r.Verifications[0])
	} else {
		lines = append(lines, "- Send a sharp photo of the component and state brand/model.")
	}

	lines = append(lines, "", OfflineFootnote)
	return strings.Join(lines, "\n")
}

func appendBullets(lines, items []string) []string {
	for _, item := range items {
		lines = append(lines, "- "+item)
	}
	return lines
}
