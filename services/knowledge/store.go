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
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"
)

// Store is the immutable, loaded knowledge base.
type Store struct {
	source     string
	loadedAt   time.Time
	components []Component
	rules      []ProtectionRule
	patterns   []FailurePattern
	protocols  []SafetyProtocol
	warnings   []string
}

// Stats summarizes a Store for health endpoints and the CLI.
type Stats struct {
	Source          string    `json:"source"`
	LoadedAt        time.Time `json:"loaded_at"`
	Components      int       `json:"components"`
	ProtectionRules int       `json:"protection_rules"`
	FailurePatterns int       `json:"failure_patterns"`
	SafetyProtocols int       `json:"safety_protocols"`
	Warnings        []string  `json:"warnings"`
}

// NewStore builds a Store from in-memory collections. Nil lists inside the
// entries are replaced with empty ones, as Load does.
func NewStore(components []Component, rules []ProtectionRule, patterns []FailurePattern, protocols []SafetyProtocol) *Store {
	s := &Store{source: "memory", loadedAt: time.Now()}
	s.components = append([]Component{}, components...)
	s.rules = append([]ProtectionRule{}, rules...)
	s.patterns = append([]FailurePattern{}, patterns...)
	s.protocols = append([]SafetyProtocol{}, protocols...)
	for i := range s.components {
		s.components[i].fillDefaults()
	}
	for i := range s.rules {
		s.rules[i].fillDefaults()
	}
	for i := range s.patterns {
		s.patterns[i].fillDefaults()
	}
	for i := range s.protocols {
		s.protocols[i].fillDefaults()
	}
	s.warnings = []string{}
	return s
}

// Load reads every collection from src.
//
// # Description
//
// A collection that cannot be read or parsed degrades to an empty list; the
// failure is logged and recorded in Stats().Warnings. Load never fails.
//
// # Inputs
//
//   - src: where the collections come from.
//   - logger: may be nil (slog.Default is used).
//
// # Outputs
//
//   - *Store: the loaded, immutable store.
func Load(src Source, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		source:     src.Name(),
		loadedAt:   time.Now(),
		components: []Component{},
		rules:      []ProtectionRule{},
		patterns:   []FailurePattern{},
		protocols:  []SafetyProtocol{},
		warnings:   []string{},
	}

	for _, collection := range Collections {
		if err := s.loadCollection(src, collection); err != nil {
			logger.Warn("Knowledge collection unavailable, using empty set",
				"collection", collection,
				"source", src.Name(),
				"error", err)
			s.warnings = append(s.warnings, err.Error())
		}
	}

	logger.Info("Knowledge base loaded",
		"source", s.source,
		"components", len(s.components),
		"protection_rules", len(s.rules),
		"failure_patterns", len(s.patterns),
		"safety_protocols", len(s.protocols))
	return s
}

func (s *Store) loadCollection(src Source, collection string) error {
	raw, err := src.ReadCollection(collection)
	if err != nil {
		return err
	}

	switch collection {
	case CollectionComponents:
		var f componentsFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return fmt.Errorf("parse %s: %w", collection, err)
		}
		ids := make([]string, len(f.Items))
		for i := range f.Items {
			f.Items[i].fillDefaults()
			ids[i] = f.Items[i].ID
		}
		if err := validateIDs(collection, ids); err != nil {
			return err
		}
		if f.Items != nil {
			s.components = f.Items
		}
	case CollectionProtectionRules:
		var f rulesFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return fmt.Errorf("parse %s: %w", collection, err)
		}
		ids := make([]string, len(f.Rules))
		for i := range f.Rules {
			f.Rules[i].fillDefaults()
			ids[i] = f.Rules[i].ID
		}
		if err := validateIDs(collection, ids); err != nil {
			return err
		}
		if f.Rules != nil {
			s.rules = f.Rules
		}
	case CollectionFailurePatterns:
		var f patternsFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return fmt.Errorf("parse %s: %w", collection, err)
		}
		ids := make([]string, len(f.Patterns))
		for i := range f.Patterns {
			f.Patterns[i].fillDefaults()
			ids[i] = f.Patterns[i].ID
		}
		if err := validateIDs(collection, ids); err != nil {
			return err
		}
		if f.Patterns != nil {
			s.patterns = f.Patterns
		}
	case CollectionSafetyProtocols:
		var f protocolsFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return fmt.Errorf("parse %s: %w", collection, err)
		}
		ids := make([]string, len(f.Protocols))
		for i := range f.Protocols {
			f.Protocols[i].fillDefaults()
			ids[i] = f.Protocols[i].ID
		}
		if err := validateIDs(collection, ids); err != nil {
			return err
		}
		if f.Protocols != nil {
			s.protocols = f.Protocols
		}
	default:
		return fmt.Errorf("unknown collection %q", collection)
	}
	return nil
}

// Components returns the component collection. Read-only.
func (s *Store) Components() []Component { return s.components }

// ProtectionRules returns the rule collection. Read-only.
func (s *Store) ProtectionRules() []ProtectionRule { return s.rules }

// FailurePatterns returns the pattern collection. Read-only.
func (s *Store) FailurePatterns() []FailurePattern { return s.patterns }

// SafetyProtocols returns the protocol collection. Read-only.
func (s *Store) SafetyProtocols() []SafetyProtocol { return s.protocols }

// Rule looks up a protection rule by id.
func (s *Store) Rule(id string) (ProtectionRule, bool) {
	for _, r := range s.rules {
		if r.ID == id {
			return r, true
		}
	}
	return ProtectionRule{}, false
}

// Stats reports collection sizes and load warnings.
func (s *Store) Stats() Stats {
	return Stats{
		Source:          s.source,
		LoadedAt:        s.loadedAt,
		Components:      len(s.components),
		ProtectionRules: len(s.rules),
		FailurePatterns: len(s.patterns),
		SafetyProtocols: len(s.protocols),
		Warnings:        append([]string{}, s.warnings...),
	}
}
