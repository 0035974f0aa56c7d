// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
// Command wirepro runs the Wire Pro field diagnostic service and its
// command-line tools.
//
// # Usage
//
//	wirepro serve --config wirepro.yaml
//	wirepro diagnose "the RCD trips when I press the outdoor lights button"
//	wirepro diagnose --ask --image panel.jpg "what is wrong here?"
//	wirepro engine-test
//	wirepro knowledge
//
// # Environment Variables
//
//   - WIREPRO_<SECTION>_<KEY>: overrides any config key, e.g.
//     WIREPRO_LLM_DEFAULT_PROVIDER=anthropic
//   - OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY: provider keys
//     when the config leaves them empty
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
