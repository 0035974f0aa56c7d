// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/wirepro/wirepro/pkg/config"
	"github.com/wirepro/wirepro/services/diagnostic"
	"github.com/wirepro/wirepro/services/knowledge"
	"github.com/wirepro/wirepro/services/llm"
	"github.com/wirepro/wirepro/services/orchestrator/observability"
	"github.com/wirepro/wirepro/services/pipeline"
	"github.com/wirepro/wirepro/services/policy_engine"
)

// runtime holds the components shared by the commands.
type runtime struct {
	engine   *diagnostic.Engine
	pipeline *pipeline.Pipeline
	metrics  *observability.Metrics
	registry *prometheus.Registry
}

// knowledgeSource picks the configured directory or the embedded set.
func knowledgeSource(cfg *config.Config) knowledge.Source {
	if cfg.Knowledge.Dir != "" {
		return knowledge.DirSource(cfg.Knowledge.Dir)
	}
	return knowledge.EmbeddedSource()
}

// newEngine loads the knowledge base and returns an engine over it.
func newEngine(cfg *config.Config, logger *slog.Logger) *diagnostic.Engine {
	store := knowledge.NewLoader(knowledgeSource(cfg), logger).Get()
	return diagnostic.NewEngine(store, logger)
}

// providerSettings maps config onto provider settings. Empty keys fall back
// to the conventional environment variables and mounted secrets.
func providerSettings(c config.LLMConfig) llm.Settings {
	return llm.Settings{
		OpenAI: llm.OpenAIConfig{
			APIKey:  llm.ResolveAPIKey(c.OpenAIAPIKey, "OPENAI_API_KEY", "openai_api_key"),
			Model:   c.OpenAIModel,
			BaseURL: c.OpenAIBaseURL,
		},
		Anthropic: llm.AnthropicConfig{
			APIKey:    llm.ResolveAPIKey(c.AnthropicAPIKey, "ANTHROPIC_API_KEY", "anthropic_api_key"),
			Model:     c.AnthropicModel,
			BaseURL:   c.AnthropicBaseURL,
			MaxTokens: c.MaxTokens,
		},
		Gemini: llm.GeminiConfig{
			APIKey:  llm.ResolveAPIKey(c.GeminiAPIKey, "GEMINI_API_KEY", "gemini_api_key"),
			Model:   c.GeminiModel,
			BaseURL: c.GeminiBaseURL,
		},
		Ollama: llm.OllamaConfig{
			BaseURL: c.OllamaBaseURL,
			Model:   c.OllamaModel,
		},
		Timeout: c.Timeout,
	}
}

// newRuntime builds the full answer pipeline from cfg.
//
// # Inputs
//
//   - ctx: used while constructing providers.
//   - cfg: loaded configuration.
//   - logger: shared logger.
//   - providers: overrides provider construction when non-nil (tests).
func newRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, providers []llm.Provider) (*runtime, error) {
	engine := newEngine(cfg, logger)

	policy, err := policy_engine.NewPolicyEngine()
	if err != nil {
		return nil, fmt.Errorf("load report policy: %w", err)
	}

	if providers == nil {
		providers = llm.NewProviders(ctx, providerSettings(cfg.LLM), logger)
	}
	if len(providers) == 0 {
		logger.Warn("No LLM provider configured, chat requests will fail until one is")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	temperature, maxTokens := cfg.LLM.Temperature, cfg.LLM.MaxTokens
	pipe, err := pipeline.New(pipeline.Deps{
		Engine:   engine,
		Policy:   policy,
		Cascade:  llm.NewCascade(providers, cfg.LLM.DefaultProvider, logger),
		Recorder: metrics,
		Logger:   logger,
		Defaults: llm.GenerationParams{Temperature: &temperature, MaxTokens: &maxTokens},
	})
	if err != nil {
		return nil, err
	}
	return &runtime{engine: engine, pipeline: pipe, metrics: metrics, registry: registry}, nil
}
