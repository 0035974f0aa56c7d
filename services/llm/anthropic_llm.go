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
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	ProviderAnthropic     = "anthropic"
	anthropicAPIVersion   = "2023-06-01"
	anthropicDefaultURL   = "https://api.anthropic.com/v1/messages"
	anthropicDefaultModel = "claude-3-5-sonnet-20240620"
	defaultMaxTokens      = 1800
)

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      []systemBlock      `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
	TopP        *float32           `json:"top_p,omitempty"`
	StopSeqs    []string           `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type   string          `json:"type"`
	Text   string          `json:"text,omitempty"`
	Source *anthropicImage `json:"source,omitempty"`
}

type anthropicImage struct {
	Type      string `json:"type"` // Must be "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type systemBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

type cacheControl struct {
	Type string `json:"type"` // Must be "ephemeral"
}

type anthropicResponse struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"`
	Model   string             `json:"model"`
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicConfig configures AnthropicProvider.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration
	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// AnthropicProvider calls the Anthropic Messages API over plain HTTP.
type AnthropicProvider struct {
	httpClient *http.Client
	apiKey     *Secret
	model      string
	url        string
	maxTokens  int
}

// NewAnthropicProvider returns a provider, or a KindConfig error when no API
// key is available.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	key := NewSecret(cfg.APIKey)
	if !key.Present() {
		return nil, &ProviderError{Provider: ProviderAnthropic, Kind: KindConfig, Err: fmt.Errorf("API key is missing")}
	}
	p := &AnthropicProvider{
		httpClient: cfg.HTTPClient,
		apiKey:     key,
		model:      cfg.Model,
		url:        cfg.BaseURL,
		maxTokens:  cfg.MaxTokens,
	}
	if p.model == "" {
		p.model = anthropicDefaultModel
		slog.Info("Anthropic model not set, defaulting", "model", p.model)
	}
	if p.url == "" {
		p.url = anthropicDefaultURL
	}
	if p.maxTokens <= 0 {
		p.maxTokens = defaultMaxTokens
	}
	if p.httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		p.httpClient = &http.Client{Timeout: timeout}
	}
	return p, nil
}

func (a *AnthropicProvider) Name() string  { return ProviderAnthropic }
func (a *AnthropicProvider) Model() string { return a.model }

// Generate implements Provider.
func (a *AnthropicProvider) Generate(ctx context.Context, req Request) (Response, error) {
	var apiMessages []anthropicMessage
	for _, turn := range historyTurns(req.History) {
		apiMessages = append(apiMessages, anthropicMessage{
			Role:    string(turn.Role),
			Content: []anthropicBlock{{Type: "text", Text: turn.Content}},
		})
	}

	var user []anthropicBlock
	if req.Image != nil && len(req.Image.Data) > 0 {
		user = append(user, anthropicBlock{
			Type: "image",
			Source: &anthropicImage{
				Type:      "base64",
				MediaType: req.Image.MIMEType,
				Data:      base64.StdEncoding.EncodeToString(req.Image.Data),
			},
		})
	}
	user = append(user, anthropicBlock{Type: "text", Text: req.UserText})
	apiMessages = append(apiMessages, anthropicMessage{Role: string(RoleUser), Content: user})

	// Long system prompts are cached between turns.
	var systemBlocks []systemBlock
	if req.SystemInstructions != "" {
		block := systemBlock{Type: "text", Text: req.SystemInstructions}
		if len(req.SystemInstructions) > 1024 {
			block.CacheControl = &cacheControl{Type: "ephemeral"}
		}
		systemBlocks = append(systemBlocks, block)
	}

	payload := anthropicRequest{
		Model:       a.model,
		Messages:    apiMessages,
		System:      systemBlocks,
		MaxTokens:   a.maxTokens,
		Temperature: req.Params.Temperature,
		TopP:        req.Params.TopP,
		StopSeqs:    req.Params.Stop,
	}
	if req.Params.MaxTokens != nil {
		payload.MaxTokens = *req.Params.MaxTokens
	}

	reqBodyBytes, err := json.Marshal(payload)
	if err != nil {
		return Response{}, &ProviderError{Provider: ProviderAnthropic, Model: a.model, Kind: KindConfig,
			Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(reqBodyBytes))
	if err != nil {
		return Response{}, &ProviderError{Provider: ProviderAnthropic, Model: a.model, Kind: KindConfig,
			Err: fmt.Errorf("failed to create request: %w", err)}
	}
	if err := a.apiKey.Use(func(key string) error {
		httpReq.Header.Set("x-api-key", key)
		return nil
	}); err != nil {
		return Response{}, &ProviderError{Provider: ProviderAnthropic, Model: a.model, Kind: KindConfig, Err: err}
	}
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)
	httpReq.Header.Set("content-type", "application/json")

	slog.Debug("Sending REST request to Anthropic", "model", a.model)
	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, wrapError(ProviderAnthropic, a.model, fmt.Errorf("HTTP request failed: %w", err))
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, wrapError(ProviderAnthropic, a.model, fmt.Errorf("read response: %w", err))
	}

	var apiResp anthropicResponse
	parseErr := json.Unmarshal(bodyBytes, &apiResp)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(bodyBytes))
		if parseErr == nil && apiResp.Error != nil {
			msg = apiResp.Error.Type + ": " + apiResp.Error.Message
		}
		return Response{}, &ProviderError{Provider: ProviderAnthropic, Model: a.model, Kind: KindRejected,
			StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", truncate(msg, 300))}
	}
	if parseErr != nil {
		return Response{}, &ProviderError{Provider: ProviderAnthropic, Model: a.model, Kind: KindRejected,
			Err: fmt.Errorf("failed to parse response JSON: %w", parseErr)}
	}

	var finalText strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			finalText.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(finalText.String()) == "" {
		return Response{}, &ProviderError{Provider: ProviderAnthropic, Model: a.model, Kind: KindRejected,
			Err: fmt.Errorf("received content but no text block found")}
	}

	model := apiResp.Model
	if model == "" {
		model = a.model
	}
	return Response{Text: finalText.String(), Model: model}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
