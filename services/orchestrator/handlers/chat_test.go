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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wirepro/wirepro/services/diagnostic"
	"github.com/wirepro/wirepro/services/knowledge"
	"github.com/wirepro/wirepro/services/llm"
	"github.com/wirepro/wirepro/services/orchestrator/conversation"
	"github.com/wirepro/wirepro/services/orchestrator/datatypes"
	"github.com/wirepro/wirepro/services/orchestrator/middleware"
	"github.com/wirepro/wirepro/services/pipeline"
	"github.com/wirepro/wirepro/services/policy_engine"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// fakeAnswerer implements Answerer and remembers every request.
type fakeAnswerer struct {
	mu       sync.Mutex
	requests []pipeline.Request
	result   *pipeline.Result
	err      error
}

func (f *fakeAnswerer) Answer(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeAnswerer) last(t *testing.T) pipeline.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func okAnswerer() *fakeAnswerer {
	return &fakeAnswerer{result: &pipeline.Result{
		Reply:         "Hypotheses:\n- [PROBABLE] insulation fault",
		Provider:      "anthropic",
		Model:         "claude-test",
		FallbackUsed:  true,
		Confidence:    policy_engine.Probable,
		Diagnostic:    &diagnostic.Report{Domain: diagnostic.DomainElectrical, IsTechnical: true},
		Summary:       "domain=electrical technical=true",
		Attempts:      []llm.Attempt{{Provider: "openai", Kind: llm.KindRejected}, {Provider: "anthropic", Position: 1}},
		AddedSections: []string{"Real Risks"},
		Findings:      []policy_engine.ScanFinding{{PhraseId: "BP-EN-01", LineNumber: 2, MatchedContent: "definitely"}},
	}}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) conversation.Store {
	t.Helper()
	store, err := conversation.OpenBadgerStore(conversation.InMemoryDBConfig(), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestEngine() *diagnostic.Engine {
	return diagnostic.NewEngine(knowledge.Load(knowledge.EmbeddedSource(), testLogger()), testLogger())
}

func chatRouter(a Answerer, store conversation.Store, opts ChatOptions) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Identity())
	router.POST("/v1/chat", HandleChat(a, store, opts))
	return router
}

func performRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}
	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeChat(t *testing.T, w *httptest.ResponseRecorder) datatypes.ChatResponse {
	t.Helper()
	var resp datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// =============================================================================
// HandleChat
// =============================================================================

func TestHandleChat_Success(t *testing.T) {
	a := okAnswerer()
	router := chatRouter(a, nil, ChatOptions{})

	w := performRequest(router, http.MethodPost, "/v1/chat", map[string]any{
		"message":  "il differenziale scatta",
		"provider": "Anthropic",
		"history":  []map[string]string{{"role": "user", "content": "ciao"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeChat(t, w)
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Equal(t, "claude-test", resp.Model)
	assert.True(t, resp.FallbackUsed)
	assert.False(t, resp.Offline)
	assert.Equal(t, "PROBABLE", resp.Confidence)
	assert.Empty(t, resp.ConversationID)
	assert.Len(t, resp.Attempts, 2)
	assert.Equal(t, []string{"Real Risks"}, resp.AddedSections)
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "BP-EN-01")
	assert.Equal(t, diagnostic.DomainElectrical, resp.Diagnostic.Domain)
	assert.Len(t, resp.RequestID, 36)

	got := a.last(t)
	assert.Equal(t, "il differenziale scatta", got.Message)
	assert.Equal(t, "anthropic", got.Provider)
	assert.Nil(t, got.Image)
	assert.Equal(t, []llm.Turn{{Role: llm.RoleUser, Content: "ciao"}}, got.History)
}

func TestHandleChat_RequestIDFromHeader(t *testing.T) {
	router := chatRouter(okAnswerer(), nil, ChatOptions{})
	body, _ := json.Marshal(map[string]string{"message": "x"})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.RequestIDHeader, "550e8400-e29b-41d4-a716-446655440000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", decodeChat(t, w).RequestID)
}

func TestHandleChat_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "malformed json", body: `{"message":`, want: "invalid request body"},
		{name: "empty message", body: `{"message":"  "}`, want: "message or image is required"},
		{name: "unknown provider", body: `{"message":"x","provider":"mistral"}`, want: "Provider"},
		{name: "bad image", body: `{"image_base64":"%%%"}`, want: "decode image"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := okAnswerer()
			router := chatRouter(a, nil, ChatOptions{})
			req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.want)
			assert.Empty(t, a.requests, "pipeline must not run")
		})
	}
}

func TestHandleChat_ImageTooLarge(t *testing.T) {
	router := chatRouter(okAnswerer(), nil, ChatOptions{MaxImageBytes: 4})
	w := performRequest(router, http.MethodPost, "/v1/chat", map[string]any{
		"message":      "guarda la foto",
		"image_base64": "iVBORw0KGgoAAAANSUhEUg==",
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestHandleChat_ErrorMapping(t *testing.T) {
	rejected := &llm.CascadeError{
		Attempts: []llm.Attempt{{Provider: "openai", Kind: llm.KindRejected, Error: "status 401"}},
		Last:     errors.New("status 401"),
	}
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{name: "no providers", err: llm.ErrNoProviders, wantCode: http.StatusServiceUnavailable, wantBody: "no LLM provider"},
		{name: "cascade exhausted", err: rejected, wantCode: http.StatusBadGateway, wantBody: "status 401"},
		{name: "empty request", err: pipeline.ErrEmptyRequest, wantCode: http.StatusBadRequest, wantBody: "neither"},
		{name: "cancelled cascade", err: &llm.CascadeError{Canceled: true, Last: context.Canceled}, wantCode: StatusClientClosedRequest},
		{name: "unexpected", err: errors.New("boom"), wantCode: http.StatusInternalServerError, wantBody: "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := chatRouter(&fakeAnswerer{err: tt.err}, nil, ChatOptions{})
			w := performRequest(router, http.MethodPost, "/v1/chat", map[string]string{"message": "x"})
			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantBody == "" {
				assert.Empty(t, w.Body.String())
				return
			}
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestHandleChat_Timeout(t *testing.T) {
	router := chatRouter(&fakeAnswerer{err: context.DeadlineExceeded}, nil, ChatOptions{})
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewBufferString(`{"message":"x"}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestHandleChat_Multipart(t *testing.T) {
	a := okAnswerer()
	router := chatRouter(a, nil, ChatOptions{MaxImageBytes: 1024})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("message", "cosa vedi?"))
	require.NoError(t, mw.WriteField("provider", "gemini"))
	require.NoError(t, mw.WriteField("history", `[{"role":"assistant","content":"ciao"}]`))
	fw, err := mw.CreateFormFile("image", "quadro.png")
	require.NoError(t, err)
	_, err = fw.Write(pngBytes)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got := a.last(t)
	assert.Equal(t, "cosa vedi?", got.Message)
	assert.Equal(t, "gemini", got.Provider)
	require.NotNil(t, got.Image)
	assert.Equal(t, "image/png", got.Image.MIMEType)
	assert.Equal(t, pngBytes, got.Image.Data)
	assert.Equal(t, []llm.Turn{{Role: llm.RoleAssistant, Content: "ciao"}}, got.History)
}

func TestHandleChat_MultipartBadHistory(t *testing.T) {
	router := chatRouter(okAnswerer(), nil, ChatOptions{})
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("message", "x"))
	require.NoError(t, mw.WriteField("history", `not json`))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleChat_PersistsConversation(t *testing.T) {
	a := okAnswerer()
	store := newTestStore(t)
	router := chatRouter(a, store, ChatOptions{})

	first := performRequest(router, http.MethodPost, "/v1/chat", map[string]string{"message": "il salvavita scatta di notte"})
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	convID := decodeChat(t, first).ConversationID
	require.NotEmpty(t, convID)
	assert.Empty(t, a.last(t).History, "new conversation has no history")

	second := performRequest(router, http.MethodPost, "/v1/chat", map[string]string{
		"message":         "e se stacco il frigo?",
		"conversation_id": convID,
	})
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, convID, decodeChat(t, second).ConversationID)

	history := a.last(t).History
	require.Len(t, history, 2, "stored turn is fed back as history")
	assert.Equal(t, llm.RoleUser, history[0].Role)
	assert.Equal(t, "il salvavita scatta di notte", history[0].Content)
	assert.Equal(t, llm.RoleAssistant, history[1].Role)

	ctx := context.Background()
	msgs, err := store.Messages(ctx, convID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "anthropic", msgs[1].Provider)
	assert.Equal(t, "PROBABLE", msgs[1].Confidence)
	assert.Equal(t, "domain=electrical technical=true", msgs[1].Meta["diagnostic"])
	assert.Equal(t, true, msgs[1].Meta["fallback_used"])

	conv, err := store.Get(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, "il salvavita scatta di notte", conv.Title)
	assert.Contains(t, conv.Summary, "[PROBABLE]")
}

func TestHandleChat_ClientHistoryWins(t *testing.T) {
	a := okAnswerer()
	store := newTestStore(t)
	router := chatRouter(a, store, ChatOptions{})

	first := performRequest(router, http.MethodPost, "/v1/chat", map[string]string{"message": "primo"})
	convID := decodeChat(t, first).ConversationID

	performRequest(router, http.MethodPost, "/v1/chat", map[string]any{
		"message":         "secondo",
		"conversation_id": convID,
		"history":         []map[string]string{{"role": "user", "content": "dal client"}},
	})
	assert.Equal(t, []llm.Turn{{Role: llm.RoleUser, Content: "dal client"}}, a.last(t).History)
}

func TestHandleChat_UnknownConversationStartsNew(t *testing.T) {
	store := newTestStore(t)
	router := chatRouter(okAnswerer(), store, ChatOptions{})

	w := performRequest(router, http.MethodPost, "/v1/chat", map[string]string{
		"message":         "x",
		"conversation_id": "does-not-exist",
	})
	require.Equal(t, http.StatusOK, w.Code)
	id := decodeChat(t, w).ConversationID
	assert.NotEqual(t, "does-not-exist", id)
	assert.NotEmpty(t, id)
}

func TestHandleChat_FailedAnswerNotStored(t *testing.T) {
	store := newTestStore(t)
	router := chatRouter(&fakeAnswerer{err: llm.ErrNoProviders}, store, ChatOptions{})

	w := performRequest(router, http.MethodPost, "/v1/chat", map[string]string{"message": "x"})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	convs, err := store.List(context.Background(), "", true)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, 0, convs[0].MessageCount)
}

func TestHandleChat_MultipartImageTooLarge(t *testing.T) {
	a := okAnswerer()
	router := chatRouter(a, nil, ChatOptions{MaxImageBytes: 16})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("message", "cosa vedi?"))
	fw, err := mw.CreateFormFile("image", "quadro.png")
	require.NoError(t, err)
	_, err = fw.Write(bytes.Repeat(pngBytes, 8))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, a.requests, "pipeline must not run")
}

func TestHandleChat_BodyTooLarge(t *testing.T) {
	a := okAnswerer()
	router := chatRouter(a, nil, ChatOptions{MaxImageBytes: 16})
	oversized := strings.Repeat("a", int(maxBodyBytes(16))+1)

	t.Run("json", func(t *testing.T) {
		w := performRequest(router, http.MethodPost, "/v1/chat", map[string]string{"message": oversized})
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("multipart", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("message", oversized))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/v1/chat", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	assert.Empty(t, a.requests, "pipeline must not run")
}

func TestHandleChat_OtherUsersConversationStartsNew(t *testing.T) {
	a := okAnswerer()
	store := newTestStore(t)
	router := chatRouter(a, store, ChatOptions{})

	chatAs := func(user string, body map[string]string) *httptest.ResponseRecorder {
		raw, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.UserHeader, user)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	first := chatAs("alice", map[string]string{"message": "codice allarme del cancello"})
	require.Equal(t, http.StatusOK, first.Code)
	aliceID := decodeChat(t, first).ConversationID

	w := chatAs("mallory", map[string]string{"message": "continua", "conversation_id": aliceID})
	require.Equal(t, http.StatusOK, w.Code)
	malloryID := decodeChat(t, w).ConversationID
	assert.NotEqual(t, aliceID, malloryID)
	assert.Empty(t, a.last(t).History, "another user's turns must not be used as history")

	ctx := context.Background()
	alice, err := store.Get(ctx, aliceID)
	require.NoError(t, err)
	assert.Equal(t, 2, alice.MessageCount)
	mallory, err := store.Get(ctx, malloryID)
	require.NoError(t, err)
	assert.Equal(t, "mallory", mallory.UserID)
}
