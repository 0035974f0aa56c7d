// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
package middleware

import (
	"github.com/gin-gonic/gin"
)

// RequestRecorder counts HTTP requests. *observability.Metrics satisfies it.
type RequestRecorder interface {
	RecordRequest(endpoint string, success bool)
}

// RequestMetrics records every request once the handler chain finished.
// Unmatched routes are recorded as "unmatched".
func RequestMetrics(rec RequestRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		rec.RecordRequest(endpoint, c.Writer.Status() < 400)
	}
}
