// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
package ux

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wirepro/wirepro/services/policy_engine"
)

var confidenceRe = regexp.MustCompile(`(?i)\[(CONFIRMED|PROBABLE|UNVERIFIABLE)\]`)

// RenderReport decorates a six-section answer: headings in the section
// style and confidence tokens in their own colours. Only LevelStyled adds
// escapes; the other levels return text unchanged.
func RenderReport(text string, level Level) string {
	if level != LevelStyled {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if isSectionHeading(line) {
			lines[i] = Styles.Section.Render(strings.TrimSpace(line))
			continue
		}
		lines[i] = confidenceRe.ReplaceAllStringFunc(line, func(tok string) string {
			switch policy_engine.Confidence(strings.ToUpper(strings.Trim(tok, "[]"))) {
			case policy_engine.Confirmed:
				return Styles.Confirmed.Render(tok)
			case policy_engine.Probable:
				return Styles.Probable.Render(tok)
			default:
				return Styles.Unverifiable.Render(tok)
			}
		})
	}
	return strings.Join(lines, "\n")
}

// isSectionHeading reports whether line is exactly "<Section title>:" with
// optional markdown decoration.
func isSectionHeading(line string) bool {
	s := strings.Trim(strings.TrimSpace(line), "#*_ ")
	title, ok := strings.CutSuffix(s, ":")
	if !ok {
		return false
	}
	for _, section := range policy_engine.Sections {
		if strings.EqualFold(strings.TrimSpace(title), section) {
			return true
		}
	}
	return false
}

// Report prints a rendered answer.
func (p *Printer) Report(text string) {
	fmt.Fprintln(p.w, RenderReport(strings.TrimRight(text, "\n"), p.level))
}
