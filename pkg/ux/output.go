// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
// Package ux renders Wire Pro output for the terminal.
//
// Three output levels are supported: Styled (colours and icons), Plain
// (icons, no colour) and Machine (stable key: value lines for scripts).
// The level is picked once per command from the --output flag, falling
// back to Plain when stdout is not a terminal.
package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Wire Pro palette: copper and amber over slate.
var (
	ColorCopper       = lipgloss.Color("#D9822B") // Titles, section headings
	ColorAmber        = lipgloss.Color("#F4B942") // Probable hypotheses, warnings
	ColorLive         = lipgloss.Color("#E74C3C") // Danger, errors
	ColorEarth        = lipgloss.Color("#2ECC71") // Confirmed, success
	ColorNeutral      = lipgloss.Color("#5DADE2") // Informational accents
	ColorSlate        = lipgloss.Color("#5D6D7E") // Muted text, borders
	ColorUnverifiable = lipgloss.Color("#AF7AC5") // Unverifiable hypotheses
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title    lipgloss.Style
	Section  lipgloss.Style
	Bold     lipgloss.Style
	Muted    lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Info     lipgloss.Style
	Box      lipgloss.Style
	AlertBox lipgloss.Style

	Confirmed    lipgloss.Style
	Probable     lipgloss.Style
	Unverifiable lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorCopper),
	Section: lipgloss.NewStyle().Bold(true).Underline(true).Foreground(ColorCopper),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorEarth),
	Warning: lipgloss.NewStyle().Foreground(ColorAmber),
	Error:   lipgloss.NewStyle().Foreground(ColorLive),
	Info:    lipgloss.NewStyle().Foreground(ColorNeutral),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorSlate).
		Padding(0, 1),
	AlertBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorLive).
		Padding(0, 1),

	Confirmed:    lipgloss.NewStyle().Bold(true).Foreground(ColorEarth),
	Probable:     lipgloss.NewStyle().Bold(true).Foreground(ColorAmber),
	Unverifiable: lipgloss.NewStyle().Bold(true).Foreground(ColorUnverifiable),
}

// Icon provides themed status icons.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconBolt    Icon = "⚡"
	IconBullet  Icon = "•"
)

// Render returns the icon with its colour.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning, IconBolt:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return string(i)
	}
}

// Level selects how much decoration is written.
type Level int

const (
	LevelStyled Level = iota
	LevelPlain
	LevelMachine
)

// ParseLevel maps "styled", "plain" and "machine" to a Level. Unknown
// values return LevelStyled and false.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "styled", "":
		return LevelStyled, true
	case "plain":
		return LevelPlain, true
	case "machine":
		return LevelMachine, true
	default:
		return LevelStyled, false
	}
}

// Printer writes decorated lines at one Level.
type Printer struct {
	w     io.Writer
	level Level
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer, level Level) *Printer {
	return &Printer{w: w, level: level}
}

// Level returns the printer's output level.
func (p *Printer) Level() Level { return p.level }

func (p *Printer) styled() bool { return p.level == LevelStyled }

// Title prints a heading. Machine output skips it.
func (p *Printer) Title(text string) {
	switch p.level {
	case LevelMachine:
		return
	case LevelPlain:
		fmt.Fprintf(p.w, "%s\n%s\n", text, strings.Repeat("=", len([]rune(text))))
	default:
		fmt.Fprintln(p.w, Styles.Title.Render(text))
	}
}

// Success prints a success line.
func (p *Printer) Success(text string) { p.status(IconSuccess, "OK", Styles.Success, text) }

// Warning prints a warning line.
func (p *Printer) Warning(text string) { p.status(IconWarning, "WARN", Styles.Warning, text) }

// Error prints an error line.
func (p *Printer) Error(text string) { p.status(IconError, "ERROR", Styles.Error, text) }

func (p *Printer) status(icon Icon, tag string, style lipgloss.Style, text string) {
	switch p.level {
	case LevelMachine:
		fmt.Fprintf(p.w, "%s: %s\n", tag, text)
	case LevelPlain:
		fmt.Fprintf(p.w, "%s %s\n", icon, text)
	default:
		fmt.Fprintf(p.w, "%s %s\n", icon.Render(), style.Render(text))
	}
}

// Field prints a key/value pair.
func (p *Printer) Field(key string, value any) {
	switch p.level {
	case LevelMachine:
		fmt.Fprintf(p.w, "%s: %v\n", strings.ToLower(strings.ReplaceAll(key, " ", "_")), value)
	case LevelPlain:
		fmt.Fprintf(p.w, "  %s: %v\n", key, value)
	default:
		fmt.Fprintf(p.w, "  %s %v\n", Styles.Muted.Render(key+":"), value)
	}
}

// Box prints content framed under a title. alert uses the danger border.
func (p *Printer) Box(title, content string, alert bool) {
	if !p.styled() {
		fmt.Fprintf(p.w, "--- %s ---\n%s\n", title, content)
		return
	}
	style := Styles.Box
	if alert {
		style = Styles.AlertBox
	}
	fmt.Fprintln(p.w, style.Width(72).Render(Styles.Title.Render(title)+"\n"+content))
}
