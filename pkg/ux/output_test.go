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
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleAnswer = `Observations:
- RCD trips on button press.

Hypotheses:
- [PROBABLE] Insulation fault.
- [unverifiable] Damaged coil.

Next Step:
- Measure insulation resistance.`

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"", LevelStyled, true},
		{"Styled", LevelStyled, true},
		{"plain", LevelPlain, true},
		{" MACHINE ", LevelMachine, true},
		{"fancy", LevelStyled, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

func TestRenderReport_NonStyledUnchanged(t *testing.T) {
	assert.Equal(t, sampleAnswer, RenderReport(sampleAnswer, LevelPlain))
	assert.Equal(t, sampleAnswer, RenderReport(sampleAnswer, LevelMachine))
}

func TestRenderReport_KeepsText(t *testing.T) {
	out := RenderReport(sampleAnswer, LevelStyled)
	for _, want := range []string{"Observations:", "[PROBABLE]", "[unverifiable]", "Measure insulation resistance."} {
		assert.Contains(t, out, want)
	}
	assert.Equal(t, strings.Count(sampleAnswer, "\n"), strings.Count(out, "\n"))
}

func TestIsSectionHeading(t *testing.T) {
	assert.True(t, isSectionHeading("Observations:"))
	assert.True(t, isSectionHeading("## **Next Step:**"))
	assert.True(t, isSectionHeading("real risks:"))
	assert.False(t, isSectionHeading("Observations: the RCD trips"))
	assert.False(t, isSectionHeading("Notes:"))
}

func TestPrinter_Levels(t *testing.T) {
	tests := []struct {
		level Level
		want  []string
	}{
		{LevelMachine, []string{"OK: stored", "WARN: offline", "ERROR: failed", "fallback_used: true"}},
		{LevelPlain, []string{"Result\n======", "✓ stored", "⚠ offline", "✗ failed", "  Fallback used: true"}},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		p := NewPrinter(&buf, tt.level)
		p.Title("Result")
		p.Success("stored")
		p.Warning("offline")
		p.Error("failed")
		p.Field("Fallback used", true)
		for _, w := range tt.want {
			assert.Contains(t, buf.String(), w)
		}
		if tt.level == LevelMachine {
			assert.NotContains(t, buf.String(), "Result")
		}
	}
}

func TestPrinter_BoxPlain(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, LevelPlain).Box("Safety", "Lock out the breaker.", true)
	assert.Equal(t, "--- Safety ---\nLock out the breaker.\n", buf.String())
}
