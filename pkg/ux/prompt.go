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
	"context"
	"errors"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// ErrNoInput is returned by AskFault when the user submitted nothing.
var ErrNoInput = errors.New("no fault description given")

// IsTerminal reports whether f is attached to an interactive terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DefaultLevel picks LevelStyled for terminals and LevelPlain otherwise.
func DefaultLevel(f *os.File) Level {
	if IsTerminal(f) {
		return LevelStyled
	}
	return LevelPlain
}

// AskFault prompts for a fault description.
//
// # Description
//
// Shows a multi-line text field. Must only be called when stdin is a
// terminal; callers check IsTerminal(os.Stdin) first.
//
// # Outputs
//
//   - string: the trimmed description.
//   - error: ErrNoInput on an empty answer, huh.ErrUserAborted on ctrl-c.
func AskFault(ctx context.Context) (string, error) {
	var text string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewText().
				Title("Describe the fault").
				Description("What happens, on which device, with any measurements you took.").
				Placeholder("The RCD trips every time I press the outdoor lights button...").
				CharLimit(4000).
				Value(&text),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoInput
	}
	return text, nil
}
