// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
This file bakes report_policy.yaml into the compiled binary. The policy is
immutable at runtime and travels with the executable.
*/

package enforcement

import (
	_ "embed"
)

// ReportPolicy holds the raw byte content of 'report_policy.yaml'.
//
// Usage:
//
//	// Pass these bytes directly to yaml.Unmarshal
//	err := yaml.Unmarshal(enforcement.ReportPolicy, &targetStruct)
//
//go:embed report_policy.yaml
var ReportPolicy []byte
