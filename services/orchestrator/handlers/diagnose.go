// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wirepro/wirepro/services/diagnostic"
	"github.com/wirepro/wirepro/services/orchestrator/datatypes"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// HandleDiagnose runs the diagnostic engine on a message without calling any
// provider and returns the report with both of its renderings.
func HandleDiagnose(engine *diagnostic.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := chatTracer.Start(c.Request.Context(), "HandleDiagnose")
		defer span.End()

		var req datatypes.DiagnoseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "bad request")
			slog.Warn("Failed to parse the diagnose request", "error", err)
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: datatypes.ValidationMessage(err)})
			return
		}

		report := engine.Analyze(diagnostic.Input{Message: req.Message, HasImage: req.HasImage})
		span.SetAttributes(
			attribute.String("diagnostic.domain", string(report.Domain)),
			attribute.StringSlice("diagnostic.patterns", report.MatchedPatterns),
		)
		c.JSON(http.StatusOK, datatypes.DiagnoseResponse{
			Report:           report,
			ContextView:      diagnostic.ContextView(report),
			StandaloneView:   diagnostic.StandaloneView(report),
			KnowledgeContext: diagnostic.KnowledgeContext(engine.Store(), req.Message),
		})
	}
}

// HandleEngineTest runs the built-in self-test case.
func HandleEngineTest(engine *diagnostic.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, engine.SelfTest())
	}
}

// HandleKnowledgeStats reports the knowledge base collection sizes and any
// load warnings.
func HandleKnowledgeStats(engine *diagnostic.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, engine.Store().Stats())
	}
}

// HandleHealth reports liveness and which providers are configured. With no
// provider the service still answers technical questions offline.
func HandleHealth(providers []string) gin.HandlerFunc {
	if providers == nil {
		providers = []string{}
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":       "ok",
			"providers":    providers,
			"offline_only": len(providers) == 0,
		})
	}
}
