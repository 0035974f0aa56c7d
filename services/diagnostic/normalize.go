// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diagnostic turns a free-text fault description into a structured
// pre-analysis.
//
// # Description
//
// The engine works purely on lexical evidence: the query is normalized and
// tokenized, scored against the failure patterns and protection rules of the
// knowledge base, and the survivors are turned into observations, graded
// hypotheses, operational checks and risks. The resulting Report is rendered
// either as context for a language model or as a complete offline answer.
//
// # Thread Safety
//
// Engine holds only a read-only knowledge Store and is safe for concurrent
// use. A Report is never modified after Analyze returns.
package diagnostic

import (
	"strings"
	"unicode"
)

// MinTokenLength is the shortest term kept by Tokenize.
const MinTokenLength = 4

var accentReplacer = strings.NewReplacer(
	"à", "a", "á", "a", "â", "a", "ä", "a",
	"è", "e", "é", "e", "ê", "e", "ë", "e",
	"ì", "i", "í", "i", "î", "i", "ï", "i",
	"ò", "o", "ó", "o", "ô", "o", "ö", "o",
	"ù", "u", "ú", "u", "û", "u", "ü", "u",
)

// Normalize lower-cases text and strips the common Latin accents.
// Normalize(Normalize(x)) == Normalize(x) for every x.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	return accentReplacer.Replace(strings.ToLower(text))
}

// Tokenize normalizes text and splits it on anything that is not a letter or
// a digit, keeping terms of at least MinTokenLength characters. Duplicates
// are kept.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(Normalize(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= MinTokenLength {
			out = append(out, f)
		}
	}
	return out
}

// tokenSet is the set form of Tokenize, used for overlap lookups.
func tokenSet(text string) map[string]struct{} {
	tokens := Tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}
