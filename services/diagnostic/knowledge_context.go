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
	"slices"
	"strings"

	"github.com/wirepro/wirepro/services/knowledge"
)

// Knowledge excerpt limits.
const (
	maxContextQueryRunes = 300
	contextComponents    = 2
	contextProtocols     = 1
	componentFaults      = 3
	componentChecks      = 4
	protocolLOTOSteps    = 3
)

// KnowledgeContext renders the components and safety protocol most related
// to query as a second context block. It returns "" when nothing relates.
//
// # Description
//
// Only the first 300 characters of the query are used. An entry scores one
// point for every query term its text contains; components weigh keywords
// and id twice as much as notes, protocols weigh the title four times as
// much as each pre-check. Entries scoring zero are dropped.
func KnowledgeContext(store *knowledge.Store, query string) string {
	terms := Tokenize(truncateRunes(strings.TrimSpace(query), maxContextQueryRunes))
	if len(terms) == 0 {
		return ""
	}

	components := rankPositive(store.Components(), func(c knowledge.Component) int {
		s := 0
		for _, kw := range c.Keywords {
			s += 2 * termHits(kw, terms)
		}
		s += 2 * termHits(c.ID, terms)
		s += termHits(c.Notes, terms)
		return s
	}, contextComponents)

	protocols := rankPositive(store.SafetyProtocols(), func(p knowledge.SafetyProtocol) int {
		s := 4 * termHits(p.Title, terms)
		for _, pre := range p.PreChecks {
			s += termHits(pre, terms)
		}
		return s
	}, contextProtocols)

	if len(components) == 0 && len(protocols) == 0 {
		return ""
	}

	lines := []string{"[WIRE PRO KNOWLEDGE BASE - REFERENCE]"}
	if len(components) > 0 {
		lines = append(lines, "")
		for _, c := range components {
			lines = append(lines, formatComponent(c)...)
		}
	}
	if len(protocols) > 0 {
		lines = append(lines, "")
		for _, p := range protocols {
			lines = append(lines, formatProtocol(p)...)
		}
	}
	lines = append(lines, "", "INSTRUCTION: use this reference ONLY where it is relevant to the question.")
	return strings.Join(lines, "\n")
}

// termHits counts the query terms contained in text.
func termHits(text string, terms []string) int {
	norm := Normalize(text)
	if norm == "" {
		return 0
	}
	n := 0
	for _, t := range terms {
		if strings.Contains(norm, t) {
			n++
		}
	}
	return n
}

func rankPositive[T any](entries []T, score func(T) int, limit int) []T {
	var hits []Match[T]
	for _, e := range entries {
		if s := score(e); s > 0 {
			hits = append(hits, Match[T]{Entry: e, Score: s})
		}
	}
	slices.SortStableFunc(hits, func(a, b Match[T]) int { return b.Score - a.Score })
	out := make([]T, 0, min(len(hits), limit))
	for _, h := range hits[:min(len(hits), limit)] {
		out = append(out, h.Entry)
	}
	return out
}

func formatComponent(c knowledge.Component) []string {
	head := "COMPONENT: " + strings.ToUpper(c.ID)
	if c.Brand != "" {
		head += " [" + strings.TrimSpace(c.Brand+" "+c.Model) + "]"
	}
	lines := []string{head}
	if len(c.TypicalFaults) > 0 {
		lines = append(lines, "  Typical faults: "+strings.Join(c.TypicalFaults[:min(len(c.TypicalFaults), componentFaults)], "; "))
	}
	if len(c.FieldChecks) > 0 {
		lines = append(lines, "  Field checks:")
		for _, fc := range c.FieldChecks[:min(len(c.FieldChecks), componentChecks)] {
			lines = append(lines, "    "+fc)
		}
	}
	if c.Notes != "" {
		lines = append(lines, "  Notes: "+c.Notes)
	}
	return lines
}

func formatProtocol(p knowledge.SafetyProtocol) []string {
	lines := []string{"SAFETY PROTOCOL: " + p.Title}
	if len(p.LockoutTagout) > 0 {
		lines = append(lines, "  LOTO: "+strings.Join(p.LockoutTagout[:min(len(p.LockoutTagout), protocolLOTOSteps)], "; "))
	}
	if len(p.StopConditions) > 0 {
		lines = append(lines, "  STOP conditions: "+p.StopConditions[0])
	}
	return lines
}
