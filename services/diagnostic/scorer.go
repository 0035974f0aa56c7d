// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diagnostic

import (
	"slices"
	"strings"

	"github.com/wirepro/wirepro/services/knowledge"
)

// Scoring constants.
const (
	// MatchThreshold is the minimum score an entry needs to be kept.
	MatchThreshold = 3

	// TopPatterns and TopRules cap the ranked results per entity kind.
	TopPatterns = 2
	TopRules    = 3

	symptomWeight     = 3
	causeWeight       = 2
	checkWeight       = 1
	whenToApplyWeight = 3
	photoPhraseWeight = 2
	ruleTextWeight    = 1
	pairBoostScore    = 4
)

// ForcedRuleIDs are always part of the rule result when the query carries
// outdoor, RCD or danger signals: lockout/tagout and general safety.
var ForcedRuleIDs = []string{"PR-02", "SP-01"}

// Match pairs a knowledge entry with its score for one query.
type Match[T any] struct {
	Entry T   `json:"entry"`
	Score int `json:"score"`
	// Forced is set on rules added by the mandatory-inclusion rule.
	Forced bool `json:"forced,omitempty"`
}

// Query is a prepared search text.
type Query struct {
	Norm   string
	Tokens map[string]struct{}
}

// NewQuery normalizes and tokenizes text once for repeated scoring.
func NewQuery(text string) Query {
	return Query{Norm: Normalize(text), Tokens: tokenSet(text)}
}

// overlap counts the tokens of text that also appear in the query. Repeated
// tokens in text count each time.
func (q Query) overlap(text string) int {
	n := 0
	for _, tok := range Tokenize(text) {
		if _, ok := q.Tokens[tok]; ok {
			n++
		}
	}
	return n
}

func containsTerm(norm, term string) bool {
	term = Normalize(term)
	return term != "" && strings.Contains(norm, term)
}

// ScorePattern scores a failure pattern against q.
//
// # Description
//
//	3 x overlap(symptom)
//	+ 2 x sum(overlap(cause))
//	+ 1 x sum(overlap(check))
//	+ 4 for every boost pair relevant to the symptom with both terms in q
//
// A pair is relevant when the normalized symptom contains either of its
// terms.
func ScorePattern(p knowledge.FailurePattern, q Query) int {
	score := symptomWeight * q.overlap(p.Symptom)
	for _, cause := range p.LikelyCauses {
		score += causeWeight * q.overlap(cause)
	}
	for _, check := range p.Checks {
		score += checkWeight * q.overlap(check)
	}

	symptom := Normalize(p.Symptom)
	for _, pair := range pairBoosts {
		relevant := strings.Contains(symptom, pair[0]) || strings.Contains(symptom, pair[1])
		if relevant && strings.Contains(q.Norm, pair[0]) && strings.Contains(q.Norm, pair[1]) {
			score += pairBoostScore
		}
	}
	return score
}

// ScoreRule scores a protection rule against q.
//
// # Description
//
//	3 x overlap(when_to_apply)
//	+ 2 for every if_seen_in_photo phrase contained in the normalized query
//	+ 1 x overlap(rule text)
func ScoreRule(r knowledge.ProtectionRule, q Query) int {
	score := whenToApplyWeight * q.overlap(r.WhenToApply)
	for _, phrase := range r.IfSeenInPhoto {
		if containsTerm(q.Norm, phrase) {
			score += photoPhraseWeight
		}
	}
	score += ruleTextWeight * q.overlap(r.Rule)
	return score
}

// rank scores every entry, drops those under MatchThreshold and returns the
// best limit entries. Equal scores keep collection order.
func rank[T any](entries []T, score func(T) int, limit int) []Match[T] {
	matches := make([]Match[T], 0, len(entries))
	for _, e := range entries {
		if s := score(e); s >= MatchThreshold {
			matches = append(matches, Match[T]{Entry: e, Score: s})
		}
	}
	slices.SortStableFunc(matches, func(a, b Match[T]) int { return b.Score - a.Score })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// MatchPatterns returns the top TopPatterns failure patterns for q.
func MatchPatterns(patterns []knowledge.FailurePattern, q Query) []Match[knowledge.FailurePattern] {
	return rank(patterns, func(p knowledge.FailurePattern) int { return ScorePattern(p, q) }, TopPatterns)
}

// MatchRules returns the top TopRules protection rules for q.
func MatchRules(rules []knowledge.ProtectionRule, q Query) []Match[knowledge.ProtectionRule] {
	return rank(rules, func(r knowledge.ProtectionRule) int { return ScoreRule(r, q) }, TopRules)
}

// forceRules appends every ForcedRuleIDs rule found in the store that is
// not already matched, at MatchThreshold.
func forceRules(matched []Match[knowledge.ProtectionRule], store *knowledge.Store) []Match[knowledge.ProtectionRule] {
	for _, id := range ForcedRuleIDs {
		present := slices.ContainsFunc(matched, func(m Match[knowledge.ProtectionRule]) bool {
			return m.Entry.ID == id
		})
		if present {
			continue
		}
		if rule, ok := store.Rule(id); ok {
			matched = append(matched, Match[knowledge.ProtectionRule]{Entry: rule, Score: MatchThreshold, Forced: true})
		}
	}
	return matched
}
