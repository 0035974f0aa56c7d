// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
// Package middleware provides HTTP middleware for the Wire Pro service.
//
// # Description
//
// The middleware chain on /v1 is:
//
//	Request
//	   │
//	   ▼
//	RequestMetrics ─► RateLimit ─► Identity ─► Handler
//
// Identity stores the caller's user id and a request id in the Gin context
// for handlers and logs. RateLimit rejects callers that exceed their
// per-IP token bucket. RequestMetrics counts every request by route and
// outcome.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// UserHeader carries the caller's user id. Conversations are scoped to
	// it; an empty value means the shared anonymous scope.
	UserHeader = "X-User-ID"

	// RequestIDHeader carries a client request id. One is generated when
	// missing and echoed back on the response.
	RequestIDHeader = "X-Request-ID"

	userIDKey    = "wirepro_user_id"
	requestIDKey = "wirepro_request_id"

	maxUserIDLen = 128
)

// Identity reads the caller identity headers into the Gin context.
//
// # Description
//
// The service has no authentication of its own; it is expected to run
// behind a gateway that sets X-User-ID. Overlong values are truncated.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := strings.TrimSpace(c.GetHeader(UserHeader))
		if len(user) > maxUserIDLen {
			user = user[:maxUserIDLen]
		}
		c.Set(userIDKey, user)

		requestID := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}

// GetUserID returns the user id stored by Identity, or "".
func GetUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// GetRequestID returns the request id stored by Identity, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
