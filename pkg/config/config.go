// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the Wire Pro service configuration.
//
// # Description
//
// Configuration is layered, highest precedence first:
//  1. Environment variables prefixed with WIREPRO_
//  2. An optional YAML file
//  3. Built-in defaults
//
// Environment variables map to keys by splitting on the first underscore
// after the prefix: WIREPRO_LLM_DEFAULT_PROVIDER sets llm.default_provider,
// WIREPRO_SERVER_PORT sets server.port.
//
// Provider API keys not set through either layer fall back to the
// conventional variables (OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY)
// and then to mounted secrets, see llm.ResolveAPIKey.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "WIREPRO_"

const maxConfigFileSize = 1024 * 1024 // 1MB

// DefaultArchiveAfter is the idle time after which conversations are archived.
const DefaultArchiveAfter = 30 * 24 * time.Hour

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	LLM       LLMConfig       `koanf:"llm"`
	Knowledge KnowledgeConfig `koanf:"knowledge"`
	Storage   StorageConfig   `koanf:"storage"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	RateLimitRPS    float64       `koanf:"rate_limit_rps"`
	RateLimitBurst  int           `koanf:"rate_limit_burst"`
	MaxImageBytes   int64         `koanf:"max_image_bytes"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LLMConfig configures the provider cascade. Keys are flat so every field
// can be overridden from the environment.
type LLMConfig struct {
	DefaultProvider string        `koanf:"default_provider"`
	Timeout         time.Duration `koanf:"timeout"`
	Temperature     float32       `koanf:"temperature"`
	MaxTokens       int           `koanf:"max_tokens"`

	OpenAIAPIKey  string `koanf:"openai_api_key"`
	OpenAIModel   string `koanf:"openai_model"`
	OpenAIBaseURL string `koanf:"openai_base_url"`

	AnthropicAPIKey  string `koanf:"anthropic_api_key"`
	AnthropicModel   string `koanf:"anthropic_model"`
	AnthropicBaseURL string `koanf:"anthropic_base_url"`

	GeminiAPIKey  string `koanf:"gemini_api_key"`
	GeminiModel   string `koanf:"gemini_model"`
	GeminiBaseURL string `koanf:"gemini_base_url"`

	OllamaBaseURL string `koanf:"ollama_base_url"`
	OllamaModel   string `koanf:"ollama_model"`
}

// KnowledgeConfig selects the knowledge base source.
type KnowledgeConfig struct {
	// Dir holds the collection files. Empty uses the embedded defaults.
	Dir string `koanf:"dir"`
}

// StorageConfig configures conversation persistence.
type StorageConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`

	// ArchiveAfter archives conversations idle for longer. Zero disables
	// the retention sweep.
	ArchiveAfter  time.Duration `koanf:"archive_after"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// TelemetryConfig configures tracing and metrics.
type TelemetryConfig struct {
	OTLPEndpoint   string `koanf:"otlp_endpoint"`
	ServiceName    string `koanf:"service_name"`
	MetricsEnabled bool   `koanf:"metrics_enabled"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	JSON   bool   `koanf:"json"`
	LogDir string `koanf:"log_dir"`
}

// Providers the cascade knows about.
var knownProviders = []string{"openai", "anthropic", "gemini", "ollama"}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.Telemetry.MetricsEnabled = true
	cfg.Storage.ArchiveAfter = DefaultArchiveAfter
	applyDefaults(cfg)
	return cfg
}

// Load reads path (optional, "" skips the file), applies environment
// overrides and defaults, and validates the result.
//
// # Inputs
//
//   - path: YAML file. A missing file is an error only when path is set.
//
// # Outputs
//
//   - *Config: validated configuration.
//   - error: read, parse or validation failure.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Seeded so that an explicit false in the file or env still wins.
	if err := k.Set("telemetry.metrics_enabled", true); err != nil {
		return nil, err
	}
	if err := k.Set("storage.archive_after", DefaultArchiveAfter); err != nil {
		return nil, err
	}

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps WIREPRO_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return io.ReadAll(f)
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitRPS == 0 {
		cfg.Server.RateLimitRPS = 2
	}
	if cfg.Server.RateLimitBurst == 0 {
		cfg.Server.RateLimitBurst = 10
	}
	if cfg.Server.MaxImageBytes == 0 {
		cfg.Server.MaxImageBytes = 8 << 20
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 120 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.LLM.DefaultProvider == "" {
		cfg.LLM.DefaultProvider = "openai"
	}
	cfg.LLM.DefaultProvider = strings.ToLower(strings.TrimSpace(cfg.LLM.DefaultProvider))
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 60 * time.Second
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.2
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1800
	}

	if cfg.Storage.Path == "" && !cfg.Storage.InMemory {
		cfg.Storage.Path = "./data/conversations"
	}
	if cfg.Storage.SweepInterval == 0 {
		cfg.Storage.SweepInterval = time.Hour
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "wirepro"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.RateLimitRPS < 0 || c.Server.RateLimitBurst < 1 {
		return errors.New("rate limit rps must be >= 0 and burst >= 1")
	}
	if c.Server.MaxImageBytes < 1 {
		return errors.New("max image bytes must be positive")
	}
	if c.Server.RequestTimeout <= 0 || c.Server.ShutdownTimeout <= 0 {
		return errors.New("request and shutdown timeouts must be positive")
	}
	if c.Storage.ArchiveAfter < 0 || c.Storage.SweepInterval <= 0 {
		return errors.New("storage archive_after must be >= 0 and sweep_interval positive")
	}
	if !slices.Contains(knownProviders, c.LLM.DefaultProvider) {
		return fmt.Errorf("unknown default provider %q (want one of %s)",
			c.LLM.DefaultProvider, strings.Join(knownProviders, ", "))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("temperature %.2f out of range [0, 2]", c.LLM.Temperature)
	}
	if c.LLM.MaxTokens < 1 {
		return errors.New("max tokens must be positive")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	return nil
}
