// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wirepro/wirepro/services/diagnostic"
	"github.com/wirepro/wirepro/services/orchestrator/conversation"
	"github.com/wirepro/wirepro/services/orchestrator/handlers"
	"github.com/wirepro/wirepro/services/orchestrator/middleware"
	"github.com/wirepro/wirepro/services/orchestrator/observability"
)

// Deps are the collaborators the route table hands to the handlers.
type Deps struct {
	Answerer handlers.Answerer
	Engine   *diagnostic.Engine
	// Conversations may be nil; the conversation routes are then absent and
	// chat turns are not stored.
	Conversations conversation.Store
	Metrics       *observability.Metrics
	// Gatherer serves /metrics. Nil disables the endpoint.
	Gatherer      prometheus.Gatherer
	Limiter       *middleware.IPRateLimiter
	Providers     []string
	MaxImageBytes int64
}

// SetupRoutes registers every endpoint on router.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HandleHealth(deps.Providers))
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.RequestMetrics(deps.Metrics))
	if deps.Limiter != nil {
		v1.Use(middleware.RateLimit(deps.Limiter))
	}
	v1.Use(middleware.Identity())
	{
		v1.POST("/chat", handlers.HandleChat(deps.Answerer, deps.Conversations, handlers.ChatOptions{
			MaxImageBytes: deps.MaxImageBytes,
		}))
		v1.POST("/diagnose", handlers.HandleDiagnose(deps.Engine))
		v1.GET("/engine/test", handlers.HandleEngineTest(deps.Engine))
		v1.GET("/knowledge/stats", handlers.HandleKnowledgeStats(deps.Engine))

		if deps.Conversations != nil {
			conversations := v1.Group("/conversations")
			{
				conversations.GET("", handlers.ListConversations(deps.Conversations))
				conversations.GET("/:id/messages", handlers.GetConversationMessages(deps.Conversations))
				conversations.POST("/:id/archive", handlers.ArchiveConversation(deps.Conversations))
			}
		}
	}
}
