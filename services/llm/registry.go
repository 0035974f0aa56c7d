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
	"log/slog"
	"time"
)

// Registration order. When neither the request nor the configuration names
// a provider, the cascade tries them in this order.
var ProviderOrder = []string{ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderOllama}

// Settings carries every provider's configuration.
type Settings struct {
	Anthropic AnthropicConfig
	OpenAI    OpenAIConfig
	Gemini    GeminiConfig
	Ollama    OllamaConfig
	Timeout   time.Duration
}

// NewProviders builds every provider whose configuration is usable, in
// ProviderOrder. Providers that cannot be built are skipped and logged; an
// empty result is not an error here, the cascade reports it per request.
func NewProviders(ctx context.Context, s Settings, logger *slog.Logger) []Provider {
	if logger == nil {
		logger = slog.Default()
	}
	if s.Anthropic.Timeout == 0 {
		s.Anthropic.Timeout = s.Timeout
	}
	if s.Ollama.Timeout == 0 {
		s.Ollama.Timeout = s.Timeout
	}

	var providers []Provider
	add := func(name string, p Provider, err error) {
		if err != nil {
			logger.Info("Provider unavailable", "provider", name, "reason", err.Error())
			return
		}
		logger.Info("Provider available", "provider", name, "model", p.Model())
		providers = append(providers, p)
	}

	for _, name := range ProviderOrder {
		switch name {
		case ProviderOpenAI:
			p, err := NewOpenAIProvider(s.OpenAI)
			add(name, p, err)
		case ProviderAnthropic:
			p, err := NewAnthropicProvider(s.Anthropic)
			add(name, p, err)
		case ProviderGemini:
			p, err := NewGeminiProvider(ctx, s.Gemini)
			add(name, p, err)
		case ProviderOllama:
			p, err := NewOllamaProvider(s.Ollama)
			add(name, p, err)
		}
	}
	return providers
}
