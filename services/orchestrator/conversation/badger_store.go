// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Key layout:
//
//	conv/<id>            -> Conversation JSON
//	msg/<id>/<seq:%08d>  -> Message JSON
const (
	convPrefix = "conv/"
	msgPrefix  = "msg/"

	maxConflictRetries = 3
)

func convKey(id string) []byte { return []byte(convPrefix + id) }

func msgKey(id string, seq int) []byte { return []byte(fmt.Sprintf("%s%s/%08d", msgPrefix, id, seq)) }

func msgPrefixFor(id string) []byte { return []byte(msgPrefix + id + "/") }

// BadgerStore implements Store on an embedded BadgerDB.
type BadgerStore struct {
	db     *db
	logger *slog.Logger
	now    func() time.Time
}

// OpenBadgerStore opens (or creates) the database described by cfg.
//
// # Inputs
//
//   - cfg: database configuration; see InMemoryDBConfig for tests.
//   - logger: may be nil.
//
// # Outputs
//
//   - *BadgerStore: ready to use. Close it on shutdown.
//   - error: non-nil if the database cannot be opened.
func OpenBadgerStore(cfg DBConfig, logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("Conversation store opened", "path", cfg.Path, "in_memory", cfg.InMemory)
	return &BadgerStore{db: d, logger: logger, now: time.Now}, nil
}

// Close releases the database.
func (s *BadgerStore) Close() error { return s.db.Close() }

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, raw)
}

// retryConflicts reruns fn while BadgerDB reports a transaction conflict.
func (s *BadgerStore) retryConflicts(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = s.db.update(ctx, fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.logger.Debug("Conversation write conflict, retrying", "attempt", attempt+1)
	}
	return err
}

// Ensure implements Store.
func (s *BadgerStore) Ensure(ctx context.Context, id, userID, firstMessage string) (Conversation, bool, error) {
	id = strings.TrimSpace(id)
	if id != "" {
		conv, err := s.Get(ctx, id)
		switch {
		case err == nil && conv.OwnedBy(userID):
			return conv, false, nil
		case err == nil:
			s.logger.Warn("Conversation id belongs to another user, starting a new one", "requested_id", id)
		case errors.Is(err, ErrNotFound):
			s.logger.Info("Unknown conversation id, starting a new one", "requested_id", id)
		default:
			return Conversation{}, false, err
		}
	}

	now := s.now().UTC()
	conv := Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     TitleFrom(firstMessage),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.db.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, convKey(conv.ID), conv)
	})
	if err != nil {
		return Conversation{}, false, fmt.Errorf("create conversation: %w", err)
	}
	return conv, true, nil
}

// Get implements Store.
func (s *BadgerStore) Get(ctx context.Context, id string) (Conversation, error) {
	var conv Conversation
	err := s.db.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, convKey(id), &conv)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Conversation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("get conversation %s: %w", id, err)
	}
	return conv, nil
}

// AppendTurn implements Store.
func (s *BadgerStore) AppendTurn(ctx context.Context, id string, turn Turn) (Conversation, error) {
	var conv Conversation
	err := s.retryConflicts(ctx, func(txn *badger.Txn) error {
		if err := getJSON(txn, convKey(id), &conv); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			return err
		}

		now := s.now().UTC()
		userContent := strings.TrimSpace(turn.UserText)
		if userContent == "" {
			userContent = imageOnlyContent
		}
		user := Message{
			ID:             uuid.NewString(),
			ConversationID: id,
			Seq:            conv.MessageCount,
			Role:           RoleUser,
			Content:        userContent,
			HasImage:       turn.HasImage,
			CreatedAt:      now,
		}
		assistant := Message{
			ID:             uuid.NewString(),
			ConversationID: id,
			Seq:            conv.MessageCount + 1,
			Role:           RoleAssistant,
			Content:        turn.Reply,
			Provider:       turn.Provider,
			Model:          turn.Model,
			Confidence:     turn.Confidence,
			Meta:           turn.Meta,
			CreatedAt:      now,
		}
		for _, m := range []Message{user, assistant} {
			if err := setJSON(txn, msgKey(id, m.Seq), m); err != nil {
				return err
			}
		}

		conv.MessageCount += 2
		conv.Summary = UpdateSummary(conv.Summary, turn)
		conv.Archived = false
		conv.UpdatedAt = now
		return setJSON(txn, convKey(id), conv)
	})
	if err != nil {
		return Conversation{}, fmt.Errorf("append turn to %s: %w", id, err)
	}
	return conv, nil
}

// Messages implements Store.
func (s *BadgerStore) Messages(ctx context.Context, id string, limit int) ([]Message, error) {
	messages := []Message{}
	err := s.db.view(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(convKey(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = msgPrefixFor(id)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var m Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return err
			}
			messages = append(messages, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

// List implements Store.
func (s *BadgerStore) List(ctx context.Context, userID string, includeArchived bool) ([]Conversation, error) {
	return s.list(ctx, func(c Conversation) bool {
		return c.OwnedBy(userID) && (includeArchived || !c.Archived)
	})
}

// ListAll implements Store.
func (s *BadgerStore) ListAll(ctx context.Context, includeArchived bool) ([]Conversation, error) {
	return s.list(ctx, func(c Conversation) bool {
		return includeArchived || !c.Archived
	})
}

func (s *BadgerStore) list(ctx context.Context, keep func(Conversation) bool) ([]Conversation, error) {
	convs := []Conversation{}
	err := s.db.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(convPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var c Conversation
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &c)
			}); err != nil {
				return err
			}
			if keep(c) {
				convs = append(convs, c)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	slices.SortStableFunc(convs, func(a, b Conversation) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return convs, nil
}

// Archive implements Store.
func (s *BadgerStore) Archive(ctx context.Context, id string) error {
	_, err := s.archive(ctx, id, time.Time{})
	return err
}

// ArchiveIdle implements Store.
func (s *BadgerStore) ArchiveIdle(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	return s.archive(ctx, id, cutoff)
}

// archive marks id archived. A non-zero cutoff is checked against the
// conversation as read inside the transaction, so a turn appended after
// the caller listed it keeps the conversation active.
func (s *BadgerStore) archive(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	archived := false
	err := s.retryConflicts(ctx, func(txn *badger.Txn) error {
		archived = false
		var conv Conversation
		if err := getJSON(txn, convKey(id), &conv); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			return err
		}
		if !cutoff.IsZero() && (conv.Archived || !conv.UpdatedAt.Before(cutoff)) {
			return nil
		}
		conv.Archived = true
		conv.UpdatedAt = s.now().UTC()
		archived = true
		return setJSON(txn, convKey(id), conv)
	})
	return archived, err
}
