// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package knowledge holds the static technical knowledge base used by the
// diagnostic engine.
//
// # Description
//
// The knowledge base is made of four collections: components, failure
// patterns, protection rules and safety protocols. Collections are read once
// from a Source (the embedded defaults or a directory on disk) and exposed
// through an immutable Store that is shared read-only by every request.
//
// # Thread Safety
//
// A Store is never mutated after Load returns. Readers need no locking.
// Slices returned by the accessors must be treated as read-only.
package knowledge

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Collection names, as they appear in the Source.
const (
	CollectionComponents      = "components"
	CollectionProtectionRules = "protection_rules"
	CollectionFailurePatterns = "failure_patterns"
	CollectionSafetyProtocols = "safety_protocols"
)

// Collections lists every collection in load order.
var Collections = []string{
	CollectionComponents,
	CollectionProtectionRules,
	CollectionFailurePatterns,
	CollectionSafetyProtocols,
}

// RiskLevel grades a protection rule.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// UnmarshalYAML accepts any casing and maps unknown values to RiskMedium.
func (r *RiskLevel) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	switch RiskLevel(strings.ToLower(strings.TrimSpace(s))) {
	case RiskLow:
		*r = RiskLow
	case RiskHigh:
		*r = RiskHigh
	default:
		*r = RiskMedium
	}
	return nil
}

// Component describes a device family met in the field.
type Component struct {
	ID            string   `yaml:"id" json:"id"`
	Brand         string   `yaml:"brand" json:"brand,omitempty"`
	Model         string   `yaml:"model" json:"model,omitempty"`
	Keywords      []string `yaml:"keywords" json:"keywords"`
	TypicalFaults []string `yaml:"typical_faults" json:"typical_faults"`
	FieldChecks   []string `yaml:"field_checks" json:"field_checks"`
	Notes         string   `yaml:"notes" json:"notes,omitempty"`
}

// FailurePattern links a symptom to its likely causes.
//
// ConfidenceLogic is parallel to LikelyCauses: entry i describes how cause i
// could be confirmed or why it cannot be verified remotely.
type FailurePattern struct {
	ID              string   `yaml:"id" json:"id"`
	Symptom         string   `yaml:"symptom" json:"symptom"`
	LikelyCauses    []string `yaml:"likely_causes" json:"likely_causes"`
	Checks          []string `yaml:"checks" json:"checks"`
	ConfidenceLogic []string `yaml:"confidence_logic" json:"confidence_logic"`
	ExampleCase     string   `yaml:"example_case" json:"example_case,omitempty"`

	// causesMissing records that likely_causes was absent from the source.
	causesMissing bool
}

// CausesDeclared reports whether the pattern lists its likely causes, even
// as an empty list. It is false when the list was absent or null.
func (p FailurePattern) CausesDeclared() bool {
	return !p.causesMissing && p.LikelyCauses != nil
}

// ProtectionRule is a field rule with its risk grade.
type ProtectionRule struct {
	ID                string    `yaml:"id" json:"id"`
	Title             string    `yaml:"title" json:"title"`
	Rule              string    `yaml:"rule" json:"rule"`
	WhenToApply       string    `yaml:"when_to_apply" json:"when_to_apply"`
	RiskLevel         RiskLevel `yaml:"risk_level" json:"risk_level"`
	IfSeenInPhoto     []string  `yaml:"if_seen_in_photo" json:"if_seen_in_photo"`
	VerificationSteps []string  `yaml:"verification_steps" json:"verification_steps"`
}

// SafetyProtocol is a procedure that must precede an intervention.
type SafetyProtocol struct {
	ID             string   `yaml:"id" json:"id"`
	Title          string   `yaml:"title" json:"title"`
	PreChecks      []string `yaml:"pre_checks" json:"pre_checks"`
	LockoutTagout  []string `yaml:"lockout_tagout" json:"lockout_tagout"`
	StopConditions []string `yaml:"stop_conditions" json:"stop_conditions"`
}

// File envelopes. Each collection file wraps its list under its own key.
type componentsFile struct {
	Items []Component `yaml:"items"`
}

type rulesFile struct {
	Rules []ProtectionRule `yaml:"rules"`
}

type patternsFile struct {
	Patterns []FailurePattern `yaml:"patterns"`
}

type protocolsFile struct {
	Protocols []SafetyProtocol `yaml:"protocols"`
}

func orEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func (c *Component) fillDefaults() {
	c.Keywords = orEmpty(c.Keywords)
	c.TypicalFaults = orEmpty(c.TypicalFaults)
	c.FieldChecks = orEmpty(c.FieldChecks)
}

func (p *FailurePattern) fillDefaults() {
	if p.LikelyCauses == nil {
		p.causesMissing = true
	}
	p.LikelyCauses = orEmpty(p.LikelyCauses)
	p.Checks = orEmpty(p.Checks)
	p.ConfidenceLogic = orEmpty(p.ConfidenceLogic)
}

func (r *ProtectionRule) fillDefaults() {
	r.IfSeenInPhoto = orEmpty(r.IfSeenInPhoto)
	r.VerificationSteps = orEmpty(r.VerificationSteps)
	if r.RiskLevel == "" {
		r.RiskLevel = RiskMedium
	}
}

func (p *SafetyProtocol) fillDefaults() {
	p.PreChecks = orEmpty(p.PreChecks)
	p.LockoutTagout = orEmpty(p.LockoutTagout)
	p.StopConditions = orEmpty(p.StopConditions)
}

// validateIDs rejects entries without an id and duplicate ids.
func validateIDs(collection string, ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	for i, id := range ids {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%s: entry %d has no id", collection, i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%s: duplicate id %q", collection, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
