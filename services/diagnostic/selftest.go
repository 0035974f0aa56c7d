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

// SelfTestInput is the built-in engine check: pressing the button for the
// outdoor lights trips the RCD, a relay drives contactor KM1 on a 230V line.
var SelfTestInput = Input{
	Message: "Ogni volta che premo il pulsante per accendere le luci esterne il differenziale scatta. " +
		"Ho un rele che pilota il contattore KM1. La linea e 230V. Come faccio a capire la causa?",
	HasImage: false,
}

// SelfTestResult bundles a report with both of its renderings.
type SelfTestResult struct {
	Input          Input   `json:"input"`
	Report         *Report `json:"report"`
	ContextView    string  `json:"context_view"`
	StandaloneView string  `json:"standalone_view"`
}

// SelfTest runs SelfTestInput through the engine.
func (e *Engine) SelfTest() SelfTestResult {
	r := e.Analyze(SelfTestInput)
	return SelfTestResult{
		Input:          SelfTestInput,
		Report:         r,
		ContextView:    ContextView(r),
		StandaloneView: StandaloneView(r),
	}
}
