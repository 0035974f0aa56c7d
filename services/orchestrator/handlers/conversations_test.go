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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wirepro/wirepro/services/orchestrator/conversation"
	"github.com/wirepro/wirepro/services/orchestrator/datatypes"
	"github.com/wirepro/wirepro/services/orchestrator/middleware"
)

func conversationRouter(store conversation.Store) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Identity())
	router.GET("/v1/conversations", ListConversations(store))
	router.GET("/v1/conversations/:id/messages", GetConversationMessages(store))
	router.POST("/v1/conversations/:id/archive", ArchiveConversation(store))
	return router
}

func seedConversation(t *testing.T, store conversation.Store, user, text string) conversation.Conversation {
	t.Helper()
	ctx := context.Background()
	conv, _, err := store.Ensure(ctx, "", user, text)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = store.AppendTurn(ctx, conv.ID, conversation.Turn{UserText: text, Reply: "Next Step:\n- misura"})
		require.NoError(t, err)
	}
	return conv
}

func postAs(router *gin.Engine, path, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if user != "" {
		req.Header.Set(middleware.UserHeader, user)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func getAs(router *gin.Engine, path, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if user != "" {
		req.Header.Set(middleware.UserHeader, user)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestListConversations_ScopedToUser(t *testing.T) {
	store := newTestStore(t)
	seedConversation(t, store, "alice", "quadro elettrico")
	seedConversation(t, store, "bob", "caldaia in blocco")
	router := conversationRouter(store)

	w := getAs(router, "/v1/conversations", "alice")
	require.Equal(t, http.StatusOK, w.Code)
	var resp datatypes.ConversationListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "quadro elettrico", resp.Conversations[0].Title)

	anonymous := getAs(router, "/v1/conversations", "")
	require.NoError(t, json.Unmarshal(anonymous.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
}

func TestGetConversationMessages(t *testing.T) {
	store := newTestStore(t)
	conv := seedConversation(t, store, "", "rele KM1")
	router := conversationRouter(store)

	w := getAs(router, "/v1/conversations/"+conv.ID+"/messages", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp datatypes.MessageListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, conv.ID, resp.Conversation.ID)
	assert.Len(t, resp.Messages, 4)

	limited := getAs(router, "/v1/conversations/"+conv.ID+"/messages?limit=1", "")
	require.NoError(t, json.Unmarshal(limited.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, conversation.RoleAssistant, resp.Messages[0].Role)

	bad := getAs(router, "/v1/conversations/"+conv.ID+"/messages?limit=-2", "")
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	missing := getAs(router, "/v1/conversations/nope/messages", "")
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestArchiveConversation(t *testing.T) {
	store := newTestStore(t)
	conv := seedConversation(t, store, "", "inverter in allarme")
	router := conversationRouter(store)

	req := httptest.NewRequest(http.MethodPost, "/v1/conversations/"+conv.ID+"/archive", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.ConversationListResponse
	require.NoError(t, json.Unmarshal(getAs(router, "/v1/conversations", "").Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
	require.NoError(t, json.Unmarshal(getAs(router, "/v1/conversations?include_archived=true", "").Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)

	req = httptest.NewRequest(http.MethodPost, "/v1/conversations/nope/archive", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetConversationMessages_OtherUserNotFound(t *testing.T) {
	store := newTestStore(t)
	conv := seedConversation(t, store, "alice", "quadro elettrico")
	router := conversationRouter(store)

	for _, user := range []string{"mallory", ""} {
		w := getAs(router, "/v1/conversations/"+conv.ID+"/messages", user)
		assert.Equal(t, http.StatusNotFound, w.Code, "user %q", user)
		assert.NotContains(t, w.Body.String(), "quadro elettrico")
	}

	owner := getAs(router, "/v1/conversations/"+conv.ID+"/messages", "alice")
	assert.Equal(t, http.StatusOK, owner.Code)
}

func TestArchiveConversation_OtherUserNotFound(t *testing.T) {
	store := newTestStore(t)
	conv := seedConversation(t, store, "alice", "quadro elettrico")
	router := conversationRouter(store)

	w := postAs(router, "/v1/conversations/"+conv.ID+"/archive", "mallory")
	assert.Equal(t, http.StatusNotFound, w.Code)

	stored, err := store.Get(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.False(t, stored.Archived)

	w = postAs(router, "/v1/conversations/"+conv.ID+"/archive", "alice")
	assert.Equal(t, http.StatusOK, w.Code)
}
