// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

const (
	ProviderGemini     = "gemini"
	geminiDefaultModel = "gemini-2.0-flash"
)

// GeminiConfig configures GeminiProvider.
type GeminiConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint (proxies, tests).
	BaseURL string
	// HTTPClient overrides the SDK default (tests).
	HTTPClient *http.Client
}

// GeminiProvider calls the Gemini API through the genai SDK.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider returns a provider, or a KindConfig error when no API
// key is available.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &ProviderError{Provider: ProviderGemini, Kind: KindConfig, Err: fmt.Errorf("API key is missing")}
	}
	model := cfg.Model
	if model == "" {
		model = geminiDefaultModel
		slog.Info("Gemini model not set, defaulting", "model", model)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      strings.TrimSpace(cfg.APIKey),
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  cfg.HTTPClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: strings.TrimSpace(cfg.BaseURL)},
	})
	if err != nil {
		return nil, &ProviderError{Provider: ProviderGemini, Model: model, Kind: KindConfig,
			Err: fmt.Errorf("failed to create GenAI client: %w", err)}
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (g *GeminiProvider) Name() string  { return ProviderGemini }
func (g *GeminiProvider) Model() string { return g.model }

// Generate implements Provider.
func (g *GeminiProvider) Generate(ctx context.Context, req Request) (Response, error) {
	var contents []*genai.Content
	for _, turn := range historyTurns(req.History) {
		role := genai.Role(genai.RoleUser)
		if turn.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}

	parts := []*genai.Part{genai.NewPartFromText(req.UserText)}
	if req.Image != nil && len(req.Image.Data) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Image.Data, req.Image.MIMEType))
	}
	contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemInstructions, genai.RoleUser),
		Temperature:       req.Params.Temperature,
		TopP:              req.Params.TopP,
		StopSequences:     req.Params.Stop,
	}
	if req.Params.MaxTokens != nil {
		config.MaxOutputTokens = int32(*req.Params.MaxTokens)
	}

	slog.Debug("Generating text via Gemini", "model", g.model)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		pe := wrapError(ProviderGemini, g.model, err)
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			pe.StatusCode = apiErr.Code
		}
		return Response{}, pe
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return Response{}, &ProviderError{Provider: ProviderGemini, Model: g.model, Kind: KindRejected,
			Err: fmt.Errorf("Gemini returned no text")}
	}

	model := resp.ModelVersion
	if model == "" {
		model = g.model
	}
	return Response{Text: text, Model: model}, nil
}
