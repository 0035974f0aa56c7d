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
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const (
	ProviderOpenAI     = "openai"
	openAIDefaultModel = "gpt-4o-mini"
)

// OpenAIConfig configures OpenAIProvider.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	// HTTPClient overrides the SDK default (tests).
	HTTPClient *http.Client
}

// OpenAIProvider calls the Chat Completions API through go-openai. Images
// are sent as data URLs, which vision models accept inline.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider returns a provider, or a KindConfig error when no API
// key is available.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &ProviderError{Provider: ProviderOpenAI, Kind: KindConfig, Err: fmt.Errorf("API key is missing")}
	}
	model := cfg.Model
	if model == "" {
		model = openAIDefaultModel
		slog.Info("OpenAI model not set, defaulting", "model", model)
	}
	clientCfg := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(clientCfg), model: model}, nil
}

func (o *OpenAIProvider) Name() string  { return ProviderOpenAI }
func (o *OpenAIProvider) Model() string { return o.model }

// Generate implements Provider.
func (o *OpenAIProvider) Generate(ctx context.Context, req Request) (Response, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: req.SystemInstructions},
	}
	for _, turn := range historyTurns(req.History) {
		role := openai.ChatMessageRoleUser
		if turn.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if req.Image != nil && len(req.Image.Data) > 0 {
		dataURL := "data:" + req.Image.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(req.Image.Data)
		user.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: req.UserText},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
				URL:    dataURL,
				Detail: openai.ImageURLDetailAuto,
			}},
		}
	} else {
		user.Content = req.UserText
	}
	messages = append(messages, user)

	chatReq := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	}
	if req.Params.Temperature != nil {
		chatReq.Temperature = *req.Params.Temperature
	}
	if req.Params.MaxTokens != nil {
		chatReq.MaxCompletionTokens = *req.Params.MaxTokens
	}
	if req.Params.TopP != nil {
		chatReq.TopP = *req.Params.TopP
	}
	if len(req.Params.Stop) > 0 {
		chatReq.Stop = req.Params.Stop
	}

	slog.Debug("Generating text via OpenAI", "model", o.model)
	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		pe := wrapError(ProviderOpenAI, o.model, err)
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			pe.StatusCode = apiErr.HTTPStatusCode
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			pe.StatusCode = reqErr.HTTPStatusCode
		}
		return Response{}, pe
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return Response{}, &ProviderError{Provider: ProviderOpenAI, Model: o.model, Kind: KindRejected,
			Err: fmt.Errorf("OpenAI returned no choices")}
	}
	slog.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)

	model := resp.Model
	if model == "" {
		model = o.model
	}
	return Response{Text: resp.Choices[0].Message.Content, Model: model}, nil
}
