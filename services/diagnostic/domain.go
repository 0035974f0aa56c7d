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

import "regexp"

// Domain is the technical area a request belongs to.
type Domain string

const (
	DomainElectrical     Domain = "electrical"
	DomainThermal        Domain = "thermal"
	DomainNetwork        Domain = "network"
	DomainHomeAutomation Domain = "home_automation"
	DomainPlumbing       Domain = "plumbing"
	DomainOther          Domain = "other"
)

// domainRules are evaluated in order; the first family that matches wins.
var domainRules = []struct {
	domain Domain
	re     *regexp.Regexp
}{
	{DomainElectrical, regexp.MustCompile(`quadro|differenziale|magnetoterm|rcd|\bmt\b|fase|neutro|terra|230|400|plc|contattore|teleruttore|trasformatore|24v|breaker|contactor`)},
	{DomainThermal, regexp.MustCompile(`caldaia|termosif|\bacs\b|pompa|valvola|pressostato|circolatore|boiler|radiator`)},
	{DomainNetwork, regexp.MustCompile(`\blan\b|router|switch|\bpoe\b|\bip\b|ethernet|cavo rete|wi-?fi`)},
	{DomainHomeAutomation, regexp.MustCompile(`shelly|zigbee|z-wave|alexa|tapo|domot`)},
	{DomainPlumbing, regexp.MustCompile(`perdita|rubinetto|scarico|\btubo\b|sifone|leak|faucet`)},
}

// ClassifyDomain assigns the first matching domain family to text.
func ClassifyDomain(text string) Domain {
	norm := Normalize(text)
	for _, rule := range domainRules {
		if rule.re.MatchString(norm) {
			return rule.domain
		}
	}
	return DomainOther
}
