// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package knowledge

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoad_EmbeddedDefaults(t *testing.T) {
	store := Load(EmbeddedSource(), quietLogger())
	stats := store.Stats()

	assert.Equal(t, "embedded", stats.Source)
	assert.Empty(t, stats.Warnings)
	assert.NotZero(t, stats.Components)
	assert.NotZero(t, stats.FailurePatterns)
	assert.NotZero(t, stats.SafetyProtocols)

	for _, id := range []string{"PR-02", "SP-01"} {
		rule, ok := store.Rule(id)
		require.True(t, ok, "rule %s must ship with the embedded knowledge base", id)
		assert.Equal(t, RiskHigh, rule.RiskLevel)
	}
}

func TestLoad_ListsNeverNil(t *testing.T) {
	src := MapSource{
		CollectionComponents:      []byte("items:\n  - id: c1\n"),
		CollectionProtectionRules: []byte("rules:\n  - id: r1\n    title: t\n"),
		CollectionFailurePatterns: []byte("patterns:\n  - id: p1\n    symptom: s\n"),
		CollectionSafetyProtocols: []byte("protocols:\n  - id: s1\n"),
	}
	store := Load(src, quietLogger())

	c := store.Components()[0]
	assert.NotNil(t, c.Keywords)
	assert.NotNil(t, c.TypicalFaults)
	assert.NotNil(t, c.FieldChecks)

	r := store.ProtectionRules()[0]
	assert.NotNil(t, r.IfSeenInPhoto)
	assert.NotNil(t, r.VerificationSteps)
	assert.Equal(t, RiskMedium, r.RiskLevel)

	p := store.FailurePatterns()[0]
	assert.NotNil(t, p.LikelyCauses)
	assert.NotNil(t, p.Checks)
	assert.NotNil(t, p.ConfidenceLogic)

	s := store.SafetyProtocols()[0]
	assert.NotNil(t, s.PreChecks)
	assert.NotNil(t, s.LockoutTagout)
	assert.NotNil(t, s.StopConditions)
}

func TestLoad_BrokenCollectionDegradesToEmpty(t *testing.T) {
	tests := []struct {
		name   string
		source MapSource
	}{
		{
			name: "missing collection",
			source: MapSource{
				CollectionComponents:      []byte("items: []\n"),
				CollectionProtectionRules: []byte("rules: []\n"),
				CollectionSafetyProtocols: []byte("protocols: []\n"),
			},
		},
		{
			name: "malformed yaml",
			source: MapSource{
				CollectionComponents:      []byte("items: []\n"),
				CollectionProtectionRules: []byte("rules: []\n"),
				CollectionFailurePatterns: []byte("patterns: [ {id: p1\n"),
				CollectionSafetyProtocols: []byte("protocols: []\n"),
			},
		},
		{
			name: "duplicate ids",
			source: MapSource{
				CollectionComponents:      []byte("items: []\n"),
				CollectionProtectionRules: []byte("rules: []\n"),
				CollectionFailurePatterns: []byte("patterns:\n  - id: p1\n  - id: p1\n"),
				CollectionSafetyProtocols: []byte("protocols: []\n"),
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := Load(tc.source, quietLogger())
			require.NotNil(t, store.FailurePatterns())
			assert.Empty(t, store.FailurePatterns())
			assert.Len(t, store.Stats().Warnings, 1)
		})
	}
}

func TestLoad_RiskLevelParsing(t *testing.T) {
	src := MapSource{
		CollectionProtectionRules: []byte(`rules:
  - id: a
    risk_level: HIGH
  - id: b
    risk_level: Low
  - id: c
    risk_level: catastrophic
`),
	}
	store := Load(src, quietLogger())
	rules := store.ProtectionRules()
	require.Len(t, rules, 3)
	assert.Equal(t, RiskHigh, rules[0].RiskLevel)
	assert.Equal(t, RiskLow, rules[1].RiskLevel)
	assert.Equal(t, RiskMedium, rules[2].RiskLevel)
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "components.yml"), []byte("items:\n  - id: x\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "failure_patterns.json"),
		[]byte(`{"patterns": [{"id": "j1", "symptom": "json symptom"}]}`), 0o600))

	src := DirSource(dir)
	store := Load(src, quietLogger())

	assert.Len(t, store.Components(), 1)
	require.Len(t, store.FailurePatterns(), 1)
	assert.Equal(t, "json symptom", store.FailurePatterns()[0].Symptom)
	// protection_rules and safety_protocols are absent.
	assert.Len(t, store.Stats().Warnings, 2)

	_, err := src.ReadCollection(CollectionSafetyProtocols)
	assert.True(t, errors.Is(err, ErrCollectionNotFound))
}

func TestLoader_LoadsOnceUnderConcurrency(t *testing.T) {
	loader := NewLoader(EmbeddedSource(), quietLogger())

	const workers = 32
	stores := make([]*Store, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stores[i] = loader.Get()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), loader.Loads())
	for _, s := range stores {
		assert.Same(t, stores[0], s)
	}
}

func TestStats_WarningsAreCopied(t *testing.T) {
	store := Load(MapSource{}, quietLogger())
	stats := store.Stats()
	require.Len(t, stats.Warnings, len(Collections))
	stats.Warnings[0] = "mutated"
	assert.NotEqual(t, "mutated", store.Stats().Warnings[0])
}
