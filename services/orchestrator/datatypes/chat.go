// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
// Package datatypes holds the request and response bodies of the Wire Pro
// HTTP API.
package datatypes

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/wirepro/wirepro/services/diagnostic"
	"github.com/wirepro/wirepro/services/llm"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxMessageBytes bounds one message or history entry.
	MaxMessageBytes = 32 * 1024

	// MaxHistoryTurns bounds client-supplied history.
	MaxHistoryTurns = 50
)

// ErrImageTooLarge is returned by DecodeImage when the decoded photo exceeds
// the configured size.
var ErrImageTooLarge = errors.New("image exceeds the size limit")

// ErrUnsupportedImage is returned for payloads that are not a known image
// format.
var ErrUnsupportedImage = errors.New("unsupported image type")

var supportedImageTypes = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}

// =============================================================================
// Shared Validator Instance
// =============================================================================

var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageBytes
}

// =============================================================================
// Chat
// =============================================================================

// HistoryTurn is one prior message sent by the client.
type HistoryTurn struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"maxbytes"`
}

// ChatRequest is the body of POST /v1/chat.
//
// # Description
//
// Either Message or an image must be present. The image arrives base64
// encoded in JSON bodies (a data: URL prefix is accepted) or as the "image"
// file of a multipart form; the handler fills Image in the latter case.
//
// When History is empty and the conversation already exists, the handler
// loads the recent stored messages instead.
//
// # Validation
//
//   - Message: at most 32KB
//   - Provider: one of the known provider names, optional
//   - History: at most 50 turns, each with role user or assistant
//   - Temperature: 0 to 2; MaxTokens: 1 to 8192
type ChatRequest struct {
	RequestID      string        `json:"request_id" validate:"omitempty,uuid"`
	Message        string        `json:"message" form:"message" validate:"maxbytes"`
	Provider       string        `json:"provider" form:"provider" validate:"omitempty,oneof=openai anthropic gemini ollama"`
	ConversationID string        `json:"conversation_id" form:"conversation_id" validate:"omitempty,max=64"`
	History        []HistoryTurn `json:"history" validate:"max=50,dive"`
	ImageBase64    string        `json:"image_base64"`
	ImageMIME      string        `json:"image_mime" form:"image_mime" validate:"omitempty,oneof=image/jpeg image/png image/webp image/gif"`
	Temperature    *float32      `json:"temperature" validate:"omitempty,gte=0,lte=2"`
	MaxTokens      *int          `json:"max_tokens" validate:"omitempty,gte=1,lte=8192"`

	// Image is set by the multipart parser.
	Image *llm.Image `json:"-"`
}

// EnsureDefaults assigns a request id when the client sent none.
func (r *ChatRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}
	r.Provider = strings.ToLower(strings.TrimSpace(r.Provider))
}

// Validate checks the struct tags and that the request carries content.
func (r *ChatRequest) Validate() error {
	if err := chatValidate.Struct(r); err != nil {
		return err
	}
	if strings.TrimSpace(r.Message) == "" && r.ImageBase64 == "" && r.Image == nil {
		return errors.New("message or image is required")
	}
	return nil
}

// DecodeImage returns the attached image, decoding ImageBase64 when the
// multipart parser did not already set Image.
//
// # Inputs
//
//   - maxBytes: upper bound on the decoded size. Zero disables the check.
//
// # Outputs
//
//   - *llm.Image: nil when no image was sent.
//   - error: ErrImageTooLarge, ErrUnsupportedImage or a base64 error.
func (r *ChatRequest) DecodeImage(maxBytes int64) (*llm.Image, error) {
	if r.Image != nil {
		return checkImage(r.Image, maxBytes)
	}
	payload := strings.TrimSpace(r.ImageBase64)
	if payload == "" {
		return nil, nil
	}

	mime := r.ImageMIME
	if strings.HasPrefix(payload, "data:") {
		header, body, ok := strings.Cut(payload, ",")
		if !ok {
			return nil, errors.New("malformed data URL")
		}
		if mime == "" {
			mime = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		}
		payload = body
	}
	if maxBytes > 0 && int64(base64.StdEncoding.DecodedLen(len(payload))) > maxBytes+2 {
		return nil, ErrImageTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return checkImage(&llm.Image{MIMEType: mime, Data: data}, maxBytes)
}

func checkImage(img *llm.Image, maxBytes int64) (*llm.Image, error) {
	if len(img.Data) == 0 {
		return nil, nil
	}
	if maxBytes > 0 && int64(len(img.Data)) > maxBytes {
		return nil, ErrImageTooLarge
	}
	if img.MIMEType == "" || img.MIMEType == "application/octet-stream" {
		img.MIMEType = http.DetectContentType(img.Data)
	}
	img.MIMEType = strings.ToLower(strings.TrimSpace(strings.Split(img.MIMEType, ";")[0]))
	for _, t := range supportedImageTypes {
		if img.MIMEType == t {
			return img, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, img.MIMEType)
}

// Params converts the optional tuning fields.
func (r *ChatRequest) Params() llm.GenerationParams {
	return llm.GenerationParams{Temperature: r.Temperature, MaxTokens: r.MaxTokens}
}

// Turns converts client history for the provider cascade.
func (r *ChatRequest) Turns() []llm.Turn {
	out := make([]llm.Turn, 0, len(r.History))
	for _, h := range r.History {
		out = append(out, llm.Turn{Role: llm.Role(h.Role), Content: h.Content})
	}
	return out
}

// ChatResponse is the body returned by POST /v1/chat.
type ChatResponse struct {
	RequestID      string             `json:"request_id"`
	Reply          string             `json:"reply"`
	Provider       string             `json:"provider"`
	Model          string             `json:"model"`
	FallbackUsed   bool               `json:"fallback_used"`
	Offline        bool               `json:"offline"`
	Confidence     string             `json:"confidence,omitempty"`
	ConversationID string             `json:"conversation_id,omitempty"`
	Diagnostic     *diagnostic.Report `json:"diagnostic"`
	Attempts       []llm.Attempt      `json:"attempts"`
	AddedSections  []string           `json:"added_sections"`
	Warnings       []string           `json:"warnings"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error     string        `json:"error"`
	RequestID string        `json:"request_id,omitempty"`
	Attempts  []llm.Attempt `json:"attempts,omitempty"`
}

// =============================================================================
// Diagnose
// =============================================================================

// DiagnoseRequest is the body of POST /v1/diagnose.
type DiagnoseRequest struct {
	Message  string `json:"message" validate:"required,maxbytes"`
	HasImage bool   `json:"has_image"`
}

// Validate checks the struct tags.
func (r *DiagnoseRequest) Validate() error {
	return chatValidate.Struct(r)
}

// DiagnoseResponse returns the engine report without calling any provider.
type DiagnoseResponse struct {
	Report           *diagnostic.Report `json:"report"`
	ContextView      string             `json:"context_view"`
	StandaloneView   string             `json:"standalone_view"`
	KnowledgeContext string             `json:"knowledge_context"`
}

// ValidationMessage flattens validator errors into one line that names the
// offending fields.
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return "invalid request: " + strings.Join(parts, "; ")
}
