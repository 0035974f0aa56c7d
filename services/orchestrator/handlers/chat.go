// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
// Package handlers implements the Wire Pro HTTP endpoints as gin handler
// closures over their dependencies.
package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wirepro/wirepro/services/llm"
	"github.com/wirepro/wirepro/services/orchestrator/conversation"
	"github.com/wirepro/wirepro/services/orchestrator/datatypes"
	"github.com/wirepro/wirepro/services/orchestrator/middleware"
	"github.com/wirepro/wirepro/services/pipeline"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var chatTracer = otel.Tracer("wirepro.orchestrator.handlers")

// StatusClientClosedRequest is set when the caller went away before an
// answer was produced. Nothing is written to the body.
const StatusClientClosedRequest = 499

// Answerer produces an answer for one user turn. *pipeline.Pipeline
// satisfies it.
type Answerer interface {
	Answer(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// bodySlack is the room left in a request body around the encoded image
// for the form fields and a full history.
const bodySlack = 64<<10 + (datatypes.MaxHistoryTurns+2)*datatypes.MaxMessageBytes

// ChatOptions tunes HandleChat.
type ChatOptions struct {
	// MaxImageBytes bounds an attached photo and, through maxBodyBytes, the
	// whole request body. Zero disables both checks.
	MaxImageBytes int64
}

// maxBodyBytes returns the largest request body accepted when photos are
// limited to maxImageBytes.
func maxBodyBytes(maxImageBytes int64) int64 {
	return int64(base64.StdEncoding.EncodedLen(int(maxImageBytes))) + bodySlack
}

// HandleChat answers one user turn.
//
// # Description
//
// Accepts a JSON ChatRequest or a multipart form with the same fields and
// an "image" file. When a conversation store is configured the conversation
// is created on first use, recent stored messages are used as history when
// the client sends none, and the finished turn is appended.
//
// # Status codes
//
//   - 200: answer produced (including the offline report)
//   - 400: malformed or invalid request
//   - 413: image or request body over the size limit
//   - 499: client went away, nothing written
//   - 502: every provider failed and no offline answer applies
//   - 503: no provider is configured
//   - 504: the request deadline passed
//
// # Inputs
//
//   - answerer: the answer pipeline.
//   - store: may be nil, in which case nothing is persisted.
//   - opts: size limits.
func HandleChat(answerer Answerer, store conversation.Store, opts ChatOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleChat")
		defer span.End()

		var req datatypes.ChatRequest
		if err := bindChatRequest(c, &req, opts.MaxImageBytes); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "bad request")
			slog.Warn("Failed to parse the chat request", "error", err)
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) || errors.Is(err, datatypes.ErrImageTooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, datatypes.ErrorResponse{Error: "request exceeds the size limit"})
				return
			}
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "invalid request body"})
			return
		}
		if req.RequestID == "" {
			req.RequestID = middleware.GetRequestID(c)
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
				Error:     datatypes.ValidationMessage(err),
				RequestID: req.RequestID,
			})
			return
		}
		image, err := req.DecodeImage(opts.MaxImageBytes)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, datatypes.ErrImageTooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			c.JSON(status, datatypes.ErrorResponse{Error: err.Error(), RequestID: req.RequestID})
			return
		}
		span.SetAttributes(
			attribute.String("request.id", req.RequestID),
			attribute.String("request.provider", req.Provider),
			attribute.Bool("request.has_image", image != nil),
		)

		history := req.Turns()
		var conv conversation.Conversation
		if store != nil {
			var created bool
			conv, created, err = store.Ensure(ctx, req.ConversationID, middleware.GetUserID(c), req.Message)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "conversation")
				slog.Error("Failed to open conversation", "request_id", req.RequestID, "error", err)
				c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "conversation storage unavailable", RequestID: req.RequestID})
				return
			}
			if !created && len(history) == 0 {
				msgs, err := store.Messages(ctx, conv.ID, conversation.HistoryWindow)
				if err != nil {
					slog.Warn("Failed to load conversation history", "conversation_id", conv.ID, "error", err)
				}
				req.History = datatypes.HistoryFromMessages(msgs)
				history = req.Turns()
			}
			span.SetAttributes(attribute.String("conversation.id", conv.ID))
		}

		result, err := answerer.Answer(ctx, pipeline.Request{
			Message:  req.Message,
			Image:    image,
			Provider: req.Provider,
			History:  history,
			Params:   req.Params(),
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "answer")
			writeAnswerError(c, req.RequestID, err)
			return
		}

		if store != nil {
			_, err := store.AppendTurn(ctx, conv.ID, conversation.Turn{
				UserText:   req.Message,
				HasImage:   image != nil,
				Reply:      result.Reply,
				Provider:   result.Provider,
				Model:      result.Model,
				Confidence: string(result.Confidence),
				Meta: map[string]any{
					"request_id":    req.RequestID,
					"diagnostic":    result.Summary,
					"fallback_used": result.FallbackUsed,
					"offline":       result.Offline,
				},
			})
			if err != nil {
				slog.Error("Failed to store conversation turn",
					"conversation_id", conv.ID,
					"request_id", req.RequestID,
					"error", err)
			}
		}

		c.JSON(http.StatusOK, datatypes.ChatResponse{
			RequestID:      req.RequestID,
			Reply:          result.Reply,
			Provider:       result.Provider,
			Model:          result.Model,
			FallbackUsed:   result.FallbackUsed,
			Offline:        result.Offline,
			Confidence:     string(result.Confidence),
			ConversationID: conv.ID,
			Diagnostic:     result.Diagnostic,
			Attempts:       result.Attempts,
			AddedSections:  result.AddedSections,
			Warnings:       result.Warnings(),
		})
	}
}

// writeAnswerError maps pipeline failures to HTTP responses.
func writeAnswerError(c *gin.Context, requestID string, err error) {
	var cascadeErr *llm.CascadeError
	isCascade := errors.As(err, &cascadeErr)

	ctxErr := c.Request.Context().Err()
	switch {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		slog.Warn("Chat request timed out", "request_id", requestID)
		c.JSON(http.StatusGatewayTimeout, datatypes.ErrorResponse{Error: "request timed out", RequestID: requestID})
	case ctxErr != nil || (isCascade && cascadeErr.Canceled):
		slog.Info("Client went away before the answer was ready", "request_id", requestID)
		c.AbortWithStatus(StatusClientClosedRequest)
	case errors.Is(err, pipeline.ErrEmptyRequest):
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error(), RequestID: requestID})
	case errors.Is(err, llm.ErrNoProviders):
		slog.Error("No LLM provider configured", "request_id", requestID)
		c.JSON(http.StatusServiceUnavailable, datatypes.ErrorResponse{
			Error:     "no LLM provider is configured",
			RequestID: requestID,
		})
	case isCascade:
		c.JSON(http.StatusBadGateway, datatypes.ErrorResponse{
			Error:     "all LLM providers failed",
			RequestID: requestID,
			Attempts:  cascadeErr.Attempts,
		})
	default:
		slog.Error("Chat request failed", "request_id", requestID, "error", err)
		c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "internal error", RequestID: requestID})
	}
}

// bindChatRequest reads a JSON body or a multipart form. With a positive
// maxImageBytes the body is capped by maxBodyBytes and an image file larger
// than maxImageBytes fails with datatypes.ErrImageTooLarge.
func bindChatRequest(c *gin.Context, req *datatypes.ChatRequest, maxImageBytes int64) error {
	if maxImageBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes(maxImageBytes))
	}
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		return c.ShouldBindJSON(req)
	}
	if _, err := c.MultipartForm(); err != nil {
		return fmt.Errorf("multipart form: %w", err)
	}

	req.Message = c.PostForm("message")
	req.Provider = c.PostForm("provider")
	req.ConversationID = c.PostForm("conversation_id")
	req.ImageMIME = c.PostForm("image_mime")
	if raw := strings.TrimSpace(c.PostForm("history")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.History); err != nil {
			return fmt.Errorf("history field: %w", err)
		}
	}

	fh, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("image field: %w", err)
	}
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	var r io.Reader = f
	if maxImageBytes > 0 {
		r = io.LimitReader(f, maxImageBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	if maxImageBytes > 0 && int64(len(data)) > maxImageBytes {
		return datatypes.ErrImageTooLarge
	}
	req.Image = &llm.Image{MIMEType: fh.Header.Get("Content-Type"), Data: data}
	return nil
}
