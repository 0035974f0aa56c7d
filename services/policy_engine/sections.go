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
)

// Section is one titled block of a report.
type Section struct {
	Title string
	// Line is the zero-based index of the heading line in Report.Lines.
	Line int
	// Body holds the non-empty lines up to the next heading, trimmed. Text
	// written on the heading line after the colon is the first body entry.
	Body []string
}

// Report is a parsed answer: its lines plus the mandatory sections found in
// them, keyed by canonical title.
type Report struct {
	Lines    []string
	Sections map[string]*Section
	Order    []string
}

// Has reports whether the canonical section title is present.
func (r *Report) Has(title string) bool {
	_, ok := r.Sections[title]
	return ok
}

// ParseReport splits text into lines and indexes every mandatory section
// heading.
//
// # Description
//
// A heading is a line whose text, once leading markdown decoration ('#', '*',
// '_', '>', spaces) is removed, starts with a canonical title followed by
// optional spaces and a colon. Matching is case-insensitive. Only the first
// heading of each title is indexed; later repeats are treated as body text.
//
// # Inputs
//
//   - text: the candidate answer. CRLF line endings are accepted.
//
// # Outputs
//
//   - *Report: never nil. Empty text yields a Report with no sections.
func ParseReport(text string) *Report {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	r := &Report{
		Lines:    strings.Split(text, "\n"),
		Sections: make(map[string]*Section, len(Sections)),
	}

	var current *Section
	for i, line := range r.Lines {
		if title, rest, ok := matchHeading(line); ok {
			if _, seen := r.Sections[title]; !seen {
				current = &Section{Title: title, Line: i}
				if rest != "" {
					current.Body = append(current.Body, rest)
				}
				r.Sections[title] = current
				r.Order = append(r.Order, title)
				continue
			}
		}
		if current == nil {
			continue
		}
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			current.Body = append(current.Body, trimmed)
		}
	}
	return r
}

// matchHeading returns the canonical title and any trailing text when line
// is a section heading.
func matchHeading(line string) (string, string, bool) {
	s := strings.TrimLeft(line, "#*_> \t")
	colon := strings.IndexByte(s, ':')
	if colon <= 0 {
		return "", "", false
	}
	candidate := strings.TrimRight(s[:colon], "*_ \t")
	for _, title := range Sections {
		if strings.EqualFold(candidate, title) {
			rest := strings.TrimSpace(strings.TrimLeft(s[colon+1:], "*_"))
			return title, rest, true
		}
	}
	return "", "", false
}

// isBullet reports whether a trimmed body line is a list item.
func isBullet(line string) bool {
	if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") || strings.HasPrefix(line, "• ") {
		return true
	}
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	return i > 0 && i < len(line) && (line[i] == ')' || line[i] == '.')
}

// Bullets returns the body lines that are list items ("- ", "* ", "1) ").
func (s *Section) Bullets() []string {
	var out []string
	for _, line := range s.Body {
		if isBullet(line) {
			out = append(out, line)
		}
	}
	return out
}
