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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wirepro/wirepro/services/orchestrator/conversation"
	"github.com/wirepro/wirepro/services/orchestrator/datatypes"
	"github.com/wirepro/wirepro/services/orchestrator/middleware"
)

// ListConversations returns the caller's conversations, newest first.
// Query parameters: include_archived (bool).
func ListConversations(store conversation.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		includeArchived, _ := strconv.ParseBool(c.Query("include_archived"))
		convs, err := store.List(c.Request.Context(), middleware.GetUserID(c), includeArchived)
		if err != nil {
			slog.Error("Failed to list conversations", "error", err)
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "failed to list conversations"})
			return
		}
		if convs == nil {
			convs = []conversation.Conversation{}
		}
		c.JSON(http.StatusOK, datatypes.ConversationListResponse{Conversations: convs, Count: len(convs)})
	}
}

// GetConversationMessages returns one conversation with its messages.
// Query parameters: limit (int, 0 or missing returns all).
func GetConversationMessages(store conversation.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id := c.Param("id")

		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "limit must be a non-negative integer"})
				return
			}
			limit = n
		}

		conv, err := getOwned(c, store, id)
		if err != nil {
			writeStoreError(c, id, err)
			return
		}
		msgs, err := store.Messages(ctx, id, limit)
		if err != nil {
			writeStoreError(c, id, err)
			return
		}
		if msgs == nil {
			msgs = []conversation.Message{}
		}
		c.JSON(http.StatusOK, datatypes.MessageListResponse{Conversation: conv, Messages: msgs})
	}
}

// ArchiveConversation hides a conversation from default listings.
func ArchiveConversation(store conversation.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, err := getOwned(c, store, id); err != nil {
			writeStoreError(c, id, err)
			return
		}
		if err := store.Archive(c.Request.Context(), id); err != nil {
			writeStoreError(c, id, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "archived": true})
	}
}

// getOwned loads id for the calling user. Conversations of other users
// are reported as ErrNotFound.
func getOwned(c *gin.Context, store conversation.Store, id string) (conversation.Conversation, error) {
	conv, err := store.Get(c.Request.Context(), id)
	if err != nil {
		return conversation.Conversation{}, err
	}
	if !conv.OwnedBy(middleware.GetUserID(c)) {
		slog.Warn("Conversation requested by another user", "conversation_id", id)
		return conversation.Conversation{}, fmt.Errorf("%w: %s", conversation.ErrNotFound, id)
	}
	return conv, nil
}

func writeStoreError(c *gin.Context, id string, err error) {
	if errors.Is(err, conversation.ErrNotFound) {
		c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: "conversation not found"})
		return
	}
	slog.Error("Conversation store failure", "conversation_id", id, "error", err)
	c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "conversation storage unavailable"})
}
