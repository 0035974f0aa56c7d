// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm holds the interchangeable generation backends and the cascade
// that tries them in order.
package llm

import (
	"context"
	"strings"
)

// GenerationParams tunes one generation call. Nil fields use the provider
// default.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Role identifies the author of a prior turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one prior message of the conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Image is an optional photo attached to the user message.
type Image struct {
	MIMEType string
	Data     []byte
}

// Request is everything a provider needs for one answer. SystemInstructions
// already embeds the rendered context blocks.
type Request struct {
	SystemInstructions string
	History            []Turn
	UserText           string
	Image              *Image
	Params             GenerationParams
}

// Response is a successful generation.
type Response struct {
	Text  string
	Model string
}

// Provider is a generation backend.
//
// Generate must honor ctx cancellation and return errors that Classify can
// sort into network, rejection and configuration failures; wrapping them in
// a *ProviderError is preferred.
type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, req Request) (Response, error)
}

// historyTurns drops empty turns and normalizes unknown roles to user.
func historyTurns(history []Turn) []Turn {
	out := make([]Turn, 0, len(history))
	for _, t := range history {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		if t.Role != RoleAssistant {
			t.Role = RoleUser
		}
		out = append(out, t)
	}
	return out
}
