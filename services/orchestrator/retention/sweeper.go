// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
// Package retention archives conversations that have been idle for too long.
//
// # Description
//
// A Sweeper runs in the background next to the HTTP service. Every Interval
// it lists the active conversations and archives the ones whose last update
// is older than ArchiveAfter, oldest first and at most BatchSize per cycle.
// Archived conversations stay readable through the messages endpoint; they
// are only hidden from default listings.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/wirepro/wirepro/services/orchestrator/conversation"
)

// Store is the subset of conversation.Store the sweeper needs.
type Store interface {
	ListAll(ctx context.Context, includeArchived bool) ([]conversation.Conversation, error)
	ArchiveIdle(ctx context.Context, id string, cutoff time.Time) (bool, error)
}

// Recorder receives the outcome of every sweep.
type Recorder interface {
	RecordSweep(archived, failed int)
}

type nopRecorder struct{}

func (nopRecorder) RecordSweep(int, int) {}

// ErrAlreadyRunning is returned by Run when the sweeper is already active.
var ErrAlreadyRunning = errors.New("retention sweeper is already running")

// Config holds the sweep schedule.
//
// # Fields
//
//   - Interval: time between sweeps. Default: 1 hour.
//   - ArchiveAfter: idle time after which a conversation is archived.
//   - BatchSize: maximum conversations archived per sweep. Default: 100.
type Config struct {
	Interval     time.Duration
	ArchiveAfter time.Duration
	BatchSize    int
}

// DefaultConfig returns the production schedule.
func DefaultConfig() Config {
	return Config{
		Interval:     time.Hour,
		ArchiveAfter: 30 * 24 * time.Hour,
		BatchSize:    100,
	}
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Scanned   int
	Expired   int
	Archived  int
	Skipped   int
	Failed    int
	StartTime time.Time
	EndTime   time.Time
}

// Duration is the wall time of the sweep.
func (r SweepResult) Duration() time.Duration { return r.EndTime.Sub(r.StartTime) }

// Sweeper archives idle conversations on a schedule.
//
// # Thread Safety
//
// SweepOnce may be called concurrently with Run. Only one Run may be active
// at a time.
type Sweeper struct {
	store    Store
	recorder Recorder
	config   Config
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
}

// NewSweeper validates cfg and returns a Sweeper.
//
// # Inputs
//
//   - store: conversation storage.
//   - cfg: schedule. ArchiveAfter and Interval must be positive; a
//     non-positive BatchSize uses the default.
//   - recorder: may be nil.
//   - logger: may be nil (slog.Default is used).
//
// # Outputs
//
//   - *Sweeper: ready to Run.
//   - error: invalid configuration.
func NewSweeper(store Store, cfg Config, recorder Recorder, logger *slog.Logger) (*Sweeper, error) {
	if store == nil {
		return nil, errors.New("retention: store is required")
	}
	if cfg.ArchiveAfter <= 0 {
		return nil, fmt.Errorf("retention: archive_after must be positive, got %s", cfg.ArchiveAfter)
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("retention: interval must be positive, got %s", cfg.Interval)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    store,
		recorder: recorder,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Run sweeps once immediately and then every Interval until ctx is done.
//
// # Description
//
// A failed sweep is logged and the schedule continues. Run returns nil when
// ctx is cancelled, which makes it suitable for an errgroup next to the HTTP
// server.
//
// # Outputs
//
//   - error: ErrAlreadyRunning if another Run is active.
func (s *Sweeper) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info("Retention sweeper starting",
		"interval", s.config.Interval.String(),
		"archive_after", s.config.ArchiveAfter.String(),
		"batch_size", s.config.BatchSize)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.execute(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Retention sweeper stopped")
			return nil
		case <-ticker.C:
			s.execute(ctx)
		}
	}
}

func (s *Sweeper) execute(ctx context.Context) {
	result, err := s.SweepOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("Retention sweep failed", "error", err)
		}
		return
	}
	if result.Expired == 0 {
		s.logger.Debug("Retention sweep found no idle conversations", "scanned", result.Scanned)
		return
	}
	s.logger.Info("Retention sweep completed",
		"scanned", result.Scanned,
		"expired", result.Expired,
		"archived", result.Archived,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"duration_ms", result.Duration().Milliseconds())
}

// SweepOnce archives the idle conversations found right now.
//
// # Description
//
// Conversations are processed oldest first. The cutoff is checked again
// when archiving, so a conversation that got a new turn or was removed
// after the listing is skipped. Any other archive failure is counted and
// logged and the sweep goes on.
//
// # Outputs
//
//   - SweepResult: counts for this sweep.
//   - error: the listing failed or ctx was cancelled mid-sweep.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	result := SweepResult{StartTime: s.now()}
	defer func() {
		s.recorder.RecordSweep(result.Archived, result.Failed)
	}()

	convs, err := s.store.ListAll(ctx, false)
	if err != nil {
		result.EndTime = s.now()
		return result, fmt.Errorf("list conversations: %w", err)
	}
	result.Scanned = len(convs)

	cutoff := result.StartTime.Add(-s.config.ArchiveAfter)
	expired := make([]conversation.Conversation, 0)
	for _, c := range convs {
		if c.UpdatedAt.Before(cutoff) {
			expired = append(expired, c)
		}
	}
	result.Expired = len(expired)
	slices.SortStableFunc(expired, func(a, b conversation.Conversation) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})
	if len(expired) > s.config.BatchSize {
		expired = expired[:s.config.BatchSize]
	}

	for _, c := range expired {
		if err := ctx.Err(); err != nil {
			result.EndTime = s.now()
			return result, err
		}
		archived, err := s.store.ArchiveIdle(ctx, c.ID, cutoff)
		if err != nil {
			if errors.Is(err, conversation.ErrNotFound) {
				result.Skipped++
				continue
			}
			result.Failed++
			s.logger.Warn("Failed to archive idle conversation",
				"conversation_id", c.ID,
				"error", err)
			continue
		}
		if !archived {
			result.Skipped++
			continue
		}
		result.Archived++
	}
	result.EndTime = s.now()
	return result, nil
}
