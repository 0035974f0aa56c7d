// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package conversation persists chat conversations for the Wire Pro service.
//
// # Description
//
// A conversation is a titled sequence of user and assistant messages with a
// rolling summary of the last few turns. The answer pipeline never touches
// storage: the chat handler loads recent history from a Store before calling
// it and appends the finished turn afterwards.
//
// # Thread Safety
//
// All Store implementations are safe for concurrent use.
package conversation

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wirepro/wirepro/services/policy_engine"
)

// ErrNotFound is returned for an unknown conversation id.
var ErrNotFound = errors.New("conversation not found")

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	// DefaultTitle names conversations started without text.
	DefaultTitle = "New chat"
	// HistoryWindow is how many prior messages are fed back to the model.
	HistoryWindow = 10
	// SummaryTurns is how many turns the rolling summary remembers.
	SummaryTurns = 5

	titleRunes       = 60
	summaryQuestion  = 120
	summaryNextStep  = 100
	imageOnlyContent = "(image only)"
)

// Conversation is the stored header of a chat.
type Conversation struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id,omitempty"`
	Title        string    `json:"title"`
	Summary      string    `json:"summary"`
	Archived     bool      `json:"archived"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Message is one stored message.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Seq            int            `json:"seq"`
	Role           string         `json:"role"`
	Content        string         `json:"content"`
	HasImage       bool           `json:"has_image,omitempty"`
	Provider       string         `json:"provider,omitempty"`
	Model          string         `json:"model,omitempty"`
	Confidence     string         `json:"confidence,omitempty"`
	Meta           map[string]any `json:"meta,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Turn is one completed question and answer, ready to be stored.
type Turn struct {
	UserText   string
	HasImage   bool
	Reply      string
	Provider   string
	Model      string
	Confidence string
	// Meta is stored on the assistant message (diagnostic summary,
	// fallback flag, offline flag).
	Meta map[string]any
}

// Store is the persistence contract used by the HTTP layer.
type Store interface {
	// Ensure returns the conversation with id, creating a new one when id
	// is empty, unknown or owned by another user. created reports whether a
	// new one was made.
	Ensure(ctx context.Context, id, userID, firstMessage string) (conv Conversation, created bool, err error)

	// Get returns one conversation or ErrNotFound.
	Get(ctx context.Context, id string) (Conversation, error)

	// AppendTurn stores the user and assistant messages of turn and updates
	// the rolling summary in one transaction.
	AppendTurn(ctx context.Context, id string, turn Turn) (Conversation, error)

	// Messages returns the last limit messages in chronological order;
	// limit <= 0 returns all of them.
	Messages(ctx context.Context, id string, limit int) ([]Message, error)

	// List returns the conversations owned by userID, most recently
	// updated first. The empty user id is the anonymous scope.
	List(ctx context.Context, userID string, includeArchived bool) ([]Conversation, error)

	// ListAll returns the conversations of every user.
	ListAll(ctx context.Context, includeArchived bool) ([]Conversation, error)

	// Archive hides a conversation from default listings. A later turn
	// makes it active again.
	Archive(ctx context.Context, id string) error

	// ArchiveIdle archives id only if it is still active and was last
	// updated before cutoff. archived is false when it was skipped.
	ArchiveIdle(ctx context.Context, id string, cutoff time.Time) (archived bool, err error)

	Close() error
}

// OwnedBy reports whether userID owns the conversation.
func (c Conversation) OwnedBy(userID string) bool {
	return c.UserID == userID
}

// TitleFrom derives a conversation title from its first message.
func TitleFrom(message string) string {
	message = strings.Join(strings.Fields(message), " ")
	if message == "" {
		return DefaultTitle
	}
	return excerpt(message, titleRunes)
}

// UpdateSummary appends turn to the rolling summary prev and keeps the last
// SummaryTurns lines.
//
// # Description
//
// Each line pairs the question with the first Next Step bullet of the
// answer, or the first non-empty answer line when the answer has no such
// section, and the confidence tag when one was extracted.
func UpdateSummary(prev string, turn Turn) string {
	question := strings.Join(strings.Fields(turn.UserText), " ")
	if question == "" {
		question = imageOnlyContent
	}
	line := "- Q: " + excerpt(question, summaryQuestion)
	if step := nextStep(turn.Reply); step != "" {
		line += " | Next: " + excerpt(step, summaryNextStep)
	}
	if turn.Confidence != "" {
		line += " [" + turn.Confidence + "]"
	}

	var lines []string
	for _, l := range strings.Split(prev, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	lines = append(lines, line)
	if len(lines) > SummaryTurns {
		lines = lines[len(lines)-SummaryTurns:]
	}
	return strings.Join(lines, "\n")
}

func nextStep(reply string) string {
	report := policy_engine.ParseReport(reply)
	if s, ok := report.Sections[policy_engine.SectionNextStep]; ok {
		if bullets := s.Bullets(); len(bullets) > 0 {
			return strings.TrimSpace(strings.TrimLeft(bullets[0], "-*•0123456789.) "))
		}
	}
	for _, l := range strings.Split(reply, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	return ""
}

func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "..."
}
