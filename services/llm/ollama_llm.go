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
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

const (
	ProviderOllama     = "ollama"
	ollamaDefaultModel = "llava"
)

// OllamaConfig configures OllamaProvider.
type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OllamaProvider calls a local Ollama server through langchaingo. With a
// vision model (llava, llama3.2-vision) images are forwarded as binary parts.
type OllamaProvider struct {
	llm   *ollama.LLM
	model string
}

// NewOllamaProvider returns a provider, or a KindConfig error when no base
// URL is configured.
func NewOllamaProvider(cfg OllamaConfig) (*OllamaProvider, error) {
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, &ProviderError{Provider: ProviderOllama, Kind: KindConfig, Err: fmt.Errorf("base URL is not set")}
	}
	model := cfg.Model
	if model == "" {
		slog.Warn("Ollama model not set, defaulting", "model", ollamaDefaultModel)
		model = ollamaDefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	llm, err := ollama.New(
		ollama.WithModel(model),
		ollama.WithServerURL(baseURL),
		ollama.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	if err != nil {
		return nil, &ProviderError{Provider: ProviderOllama, Model: model, Kind: KindConfig, Err: err}
	}
	slog.Info("Initializing Ollama client", "base_url", baseURL, "default_model", model)
	return &OllamaProvider{llm: llm, model: model}, nil
}

func (o *OllamaProvider) Name() string  { return ProviderOllama }
func (o *OllamaProvider) Model() string { return o.model }

// Generate implements Provider.
func (o *OllamaProvider) Generate(ctx context.Context, req Request) (Response, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, req.SystemInstructions),
	}
	for _, turn := range historyTurns(req.History) {
		role := llms.ChatMessageTypeHuman
		if turn.Role == RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, turn.Content))
	}

	user := llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextContent{Text: req.UserText}},
	}
	if req.Image != nil && len(req.Image.Data) > 0 {
		user.Parts = append(user.Parts, llms.BinaryPart(req.Image.MIMEType, req.Image.Data))
	}
	messages = append(messages, user)

	var opts []llms.CallOption
	if req.Params.Temperature != nil {
		opts = append(opts, llms.WithTemperature(float64(*req.Params.Temperature)))
	} else {
		opts = append(opts, llms.WithTemperature(0.2))
	}
	if req.Params.MaxTokens != nil {
		opts = append(opts, llms.WithMaxTokens(*req.Params.MaxTokens))
	}
	if req.Params.TopP != nil {
		opts = append(opts, llms.WithTopP(float64(*req.Params.TopP)))
	}
	if len(req.Params.Stop) > 0 {
		opts = append(opts, llms.WithStopWords(req.Params.Stop))
	}

	slog.Debug("Generating text via Ollama", "model", o.model)
	resp, err := o.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return Response{}, wrapError(ProviderOllama, o.model, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return Response{}, &ProviderError{Provider: ProviderOllama, Model: o.model, Kind: KindRejected,
			Err: fmt.Errorf("Ollama returned no content")}
	}
	return Response{Text: resp.Choices[0].Content, Model: o.model}, nil
}
