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
This package bakes the default knowledge collections into the binary so the
service starts with a usable knowledge base even when no directory is
configured.
*/

package data

import "embed"

// Files holds components.yaml, protection_rules.yaml, failure_patterns.yaml
// and safety_protocols.yaml.
//
//go:embed *.yaml
var Files embed.FS
