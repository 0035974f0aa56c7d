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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wirepro/wirepro/pkg/config"
	"github.com/wirepro/wirepro/pkg/logging"
	"github.com/wirepro/wirepro/pkg/ux"
	"github.com/wirepro/wirepro/services/diagnostic"
	"github.com/wirepro/wirepro/services/knowledge"
	"github.com/wirepro/wirepro/services/llm"
	"github.com/wirepro/wirepro/services/pipeline"
)

const faultText = "Ogni volta che premo il pulsante il differenziale scatta, linea 230V"

type stubProvider struct {
	name string
	text string
	err  error
}

func (s *stubProvider) Name() string  { return s.name }
func (s *stubProvider) Model() string { return s.name + "-test" }

func (s *stubProvider) Generate(context.Context, llm.Request) (llm.Response, error) {
	if s.err != nil {
		return llm.Response{}, s.err
	}
	return llm.Response{Text: s.text, Model: s.Model()}, nil
}

// runRoot executes the root command and returns stdout.
func runRoot(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func testOptions(t *testing.T, out io.Writer, level ux.Level) *globalOptions {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return &globalOptions{
		cfg:     cfg,
		logger:  logging.New(logging.Config{Level: logging.LevelError, Output: io.Discard}),
		printer: ux.NewPrinter(out, level),
	}
}

func testCommand(stdin string, out io.Writer) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(out)
	cmd.SetContext(context.Background())
	return cmd
}

func TestRoot_UnknownOutputLevel(t *testing.T) {
	_, err := runRoot(t, "", "--output", "fancy", "knowledge")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown --output")
}

func TestRoot_InvalidLogLevel(t *testing.T) {
	_, err := runRoot(t, "", "--log-level", "chatty", "knowledge")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestKnowledgeCmd_JSON(t *testing.T) {
	out, err := runRoot(t, "", "--output", "machine", "knowledge", "--json")
	require.NoError(t, err)

	var stats knowledge.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, "embedded", stats.Source)
	assert.Positive(t, stats.Components)
	assert.Positive(t, stats.FailurePatterns)
	assert.Empty(t, stats.Warnings)
}

func TestKnowledgeCmd_MissingDirReportsWarnings(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "wirepro.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("knowledge:\n  dir: "+filepath.Join(dir, "absent")+"\n"), 0o600))

	out, err := runRoot(t, "", "--config", cfgPath, "--output", "machine", "knowledge")
	require.NoError(t, err)
	assert.Contains(t, out, "components: 0")
	assert.Contains(t, out, "WARN: ")
}

func TestEngineTestCmd_JSON(t *testing.T) {
	out, err := runRoot(t, "", "--output", "machine", "engine-test", "--json")
	require.NoError(t, err)

	var result diagnostic.SelfTestResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, diagnostic.SelfTestInput.Message, result.Input.Message)
	require.NotNil(t, result.Report)
	assert.True(t, result.Report.IsTechnical)
	assert.NotEmpty(t, result.ContextView)
	assert.NotEmpty(t, result.StandaloneView)
}

func TestDiagnoseCmd_OfflineReportFromArgs(t *testing.T) {
	out, err := runRoot(t, "", "--output", "machine", "diagnose", faultText)
	require.NoError(t, err)
	assert.Contains(t, out, "domain: electrical")
	assert.Contains(t, out, "technical: true")
}

func TestDiagnoseCmd_ReadsStdin(t *testing.T) {
	out, err := runRoot(t, faultText+"\n", "--output", "machine", "diagnose", "--json")
	require.NoError(t, err)

	var payload struct {
		Report         diagnostic.Report `json:"report"`
		StandaloneView string            `json:"standalone_view"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, diagnostic.DomainElectrical, payload.Report.Domain)
	assert.NotEmpty(t, payload.StandaloneView)
}

func TestDiagnoseCmd_EmptyInput(t *testing.T) {
	_, err := runRoot(t, "   \n", "--output", "machine", "diagnose")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fault description")
}

func TestDiagnoseCmd_ImageMustBeAnImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("just some text"), 0o600))

	_, err := runRoot(t, "", "--output", "machine", "diagnose", "--image", path, faultText)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not an image")
}

func TestRunDiagnose_AskUsesProvider(t *testing.T) {
	var out bytes.Buffer
	opts := testOptions(t, &out, ux.LevelMachine)
	d := &diagnoseOptions{
		ask:       true,
		asJSON:    true,
		providers: []llm.Provider{&stubProvider{name: "openai", text: "Observations\n- il differenziale scatta"}},
	}

	require.NoError(t, runDiagnose(testCommand("", &out), opts, d, []string{faultText}))

	var result pipeline.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, "openai", result.Provider)
	assert.False(t, result.Offline)
	assert.NotEmpty(t, result.AddedSections)
}

func TestRunDiagnose_AskPlainOutput(t *testing.T) {
	var out bytes.Buffer
	opts := testOptions(t, &out, ux.LevelMachine)
	d := &diagnoseOptions{
		ask:       true,
		providers: []llm.Provider{&stubProvider{name: "openai", text: "Observations\n- ok"}},
	}

	require.NoError(t, runDiagnose(testCommand("", &out), opts, d, []string{faultText}))
	assert.Contains(t, out.String(), "provider: openai")
	assert.Contains(t, out.String(), "fallback_used: false")
}

func TestRunDiagnose_AskWithoutProviders(t *testing.T) {
	var out bytes.Buffer
	opts := testOptions(t, &out, ux.LevelMachine)
	d := &diagnoseOptions{ask: true, providers: []llm.Provider{}}

	err := runDiagnose(testCommand("", &out), opts, d, []string{faultText})
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrNoProviders))
}

func TestNewRuntime_RegistersCollectors(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	rt, err := newRuntime(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)),
		[]llm.Provider{&stubProvider{name: "ollama"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"ollama"}, rt.pipeline.Providers())
	assert.Same(t, rt.engine, rt.pipeline.Engine())
	count, err := testutil.GatherAndCount(rt.registry, "go_goroutines")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProviderSettings_ExplicitKeysWin(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "from-env")
	settings := providerSettings(config.LLMConfig{
		OpenAIAPIKey:    "explicit",
		AnthropicModel:  "claude-test",
		OllamaBaseURL:   "http://ollama:11434",
		MaxTokens:       900,
		GeminiModel:     "gemini-test",
		AnthropicAPIKey: "ak",
	})
	assert.Equal(t, "explicit", settings.OpenAI.APIKey)
	assert.Equal(t, "ak", settings.Anthropic.APIKey)
	assert.Equal(t, 900, settings.Anthropic.MaxTokens)
	assert.Equal(t, "claude-test", settings.Anthropic.Model)
	assert.Equal(t, "gemini-test", settings.Gemini.Model)
	assert.Equal(t, "http://ollama:11434", settings.Ollama.BaseURL)
}

func TestProviderSettings_EnvFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "from-env")
	settings := providerSettings(config.LLMConfig{})
	assert.Equal(t, "from-env", settings.OpenAI.APIKey)
}

func TestStorageLabel(t *testing.T) {
	assert.Equal(t, "memory", storageLabel(true, "/ignored"))
	assert.Equal(t, "/var/lib/wirepro", storageLabel(false, "/var/lib/wirepro"))
}
