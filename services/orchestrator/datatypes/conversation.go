// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
package datatypes

import "github.com/wirepro/wirepro/services/orchestrator/conversation"

// ConversationListResponse is the body of GET /v1/conversations.
type ConversationListResponse struct {
	Conversations []conversation.Conversation `json:"conversations"`
	Count         int                         `json:"count"`
}

// MessageListResponse is the body of GET /v1/conversations/:id/messages.
type MessageListResponse struct {
	Conversation conversation.Conversation `json:"conversation"`
	Messages     []conversation.Message    `json:"messages"`
}

// HistoryFromMessages turns stored messages into provider history, oldest
// first.
func HistoryFromMessages(msgs []conversation.Message) []HistoryTurn {
	out := make([]HistoryTurn, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, HistoryTurn{Role: m.Role, Content: m.Content})
	}
	return out
}
