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

// Keyword families. Matching is substring-based on the normalized query, so
// stems such as "magnetoterm" or "morsett" cover every inflection.
var (
	techKeywords = []string{
		"tensione", "volt", "230v", "400v", "24v",
		"differenziale", "rcd", "rcbo", "magnetoterm", "mcb",
		"contattore", "rele", "relay", "bobina",
		"quadro", "impianto", "morsett",
		"plc", "automazione", "ingresso", "uscita",
		"terra", "neutro", "fase", "dispersione",
		"cortocircuito", "sovraccarico", "fusibile", "sezionatore",
		"bruciato", "fuma", "scintille", "odore",
		"corrente", "misura", "multimetro", "pinza",
		"isolamento", "megohmetro",
		"ip44", "ip65", "guarnizione", "pressacavi",
		"caldaia", "termostato", "circolatore", "pompa",
		"shelly", "zigbee", "domotica",
		"breaker", "contactor", "insulation", "multimeter",
	}

	dangerKeywords = []string{
		"bruciato", "fuma", "fumo", "scintille", "scintilla",
		"odore bruciato", "cavo annerito", "incendio", "fiamma",
		"smoke", "sparks", "burnt", "burning smell",
	}

	voltageKeywords     = []string{"tensione", "volt", "230v", "400v", "24v", "vac", "vdc"}
	rcdKeywords         = []string{"differenziale", "rcd", "rcbo", "salvavita", "scatta", "tripping"}
	outdoorKeywords     = []string{"esterno", "ip44", "ip65", "ip67", "cassetta", "guarnizione", "pressacavi", "outdoor"}
	measurementKeywords = []string{"misura", "multimetro", "pinza", "megohmetro", "tester", "multimeter", "megger"}
)

// pairBoosts are term pairs that are far more diagnostic together than
// apart. Kept literal, bilingual synonyms included.
var pairBoosts = [][2]string{
	{"differenziale", "scatta"},
	{"rcd", "scatta"},
	{"rele", "contattore"},
	{"relay", "luce"},
	{"24v", "plc"},
	{"tensione", "flottante"},
	{"ghost", "voltage"},
	{"ip", "guarnizione"},
	{"esterno", "pressacavi"},
	{"magnetoterm", "caldo"},
	{"morsett", "allentato"},
}

// containsAny reports whether normalized text contains any keyword.
func containsAny(norm string, keywords []string) bool {
	for _, kw := range keywords {
		if containsTerm(norm, kw) {
			return true
		}
	}
	return false
}

// findMatches returns the keywords contained in normalized text, in keyword
// order.
func findMatches(norm string, keywords []string) []string {
	found := []string{}
	for _, kw := range keywords {
		if containsTerm(norm, kw) {
			found = append(found, kw)
		}
	}
	return found
}
