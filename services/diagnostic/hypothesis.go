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
	"strings"

	"github.com/wirepro/wirepro/services/knowledge"
	"github.com/wirepro/wirepro/services/policy_engine"
)

// unverifiableMarkers flag a confidence-logic entry as a real limit on what
// can be checked remotely.
var unverifiableMarkers = []string{"not verifiable", "non verificabile"}

// Hypothesis is one graded cause.
type Hypothesis struct {
	Cause      string                   `json:"cause"`
	Confidence policy_engine.Confidence `json:"confidence"`
	PatternID  string                   `json:"pattern_id"`
}

// Line renders the hypothesis as a report bullet body: "[PROBABLE] cause".
func (h Hypothesis) Line() string {
	return h.Confidence.Token() + " " + h.Cause
}

// BuildHypotheses grades every likely cause of p.
//
// # Description
//
// Every cause starts as PROBABLE. When ConfidenceLogic[i] exists and says the
// cause is not verifiable, cause i becomes UNVERIFIABLE. A logic entry that
// mentions confirmation only describes how the cause could be confirmed, so
// it never yields CONFIRMED: without live measurements nothing is certain.
// Missing or blank entries leave the default in place.
//
// A pattern whose causes were never declared yields a single hypothesis
// built from its symptom. An explicitly empty list yields none.
func BuildHypotheses(p knowledge.FailurePattern) []Hypothesis {
	causes := p.LikelyCauses
	if !p.CausesDeclared() && strings.TrimSpace(p.Symptom) != "" {
		causes = []string{p.Symptom}
	}
	out := make([]Hypothesis, 0, len(causes))
	for i, cause := range causes {
		confidence := policy_engine.Probable
		if i < len(p.ConfidenceLogic) && isUnverifiable(p.ConfidenceLogic[i]) {
			confidence = policy_engine.Unverifiable
		}
		out = append(out, Hypothesis{Cause: cause, Confidence: confidence, PatternID: p.ID})
	}
	return out
}

func isUnverifiable(logic string) bool {
	norm := Normalize(logic)
	for _, marker := range unverifiableMarkers {
		if strings.Contains(norm, marker) {
			return true
		}
	}
	return false
}
