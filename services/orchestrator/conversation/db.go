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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// DBConfig configures the BadgerDB instance behind BadgerStore.
type DBConfig struct {
	// Path is the directory for BadgerDB files.
	// Required unless InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Used by tests and demos.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives BadgerDB's internal logs. nil silences them.
	Logger *slog.Logger

	// GCInterval is how often the value log is garbage collected.
	// 0 disables GC. Ignored in memory.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum discardable fraction before a rewrite.
	GCDiscardRatio float64
}

// DefaultDBConfig returns a durable configuration rooted at path.
func DefaultDBConfig(path string) DBConfig {
	return DBConfig{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryDBConfig returns a throwaway configuration.
func InMemoryDBConfig() DBConfig {
	return DBConfig{InMemory: true}
}

// badgerLogger adapts slog to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// db wraps badger.DB with an optional value log GC loop.
type db struct {
	*badger.DB
	stopGC chan struct{}
	gcDone chan struct{}
}

// openDB opens BadgerDB according to cfg.
//
// # Inputs
//
//   - cfg: database configuration.
//
// # Outputs
//
//   - *db: the open database. Close it to stop GC and release files.
//   - error: non-nil if the path is missing or BadgerDB fails to open.
func openDB(cfg DBConfig) (*db, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	d := &db{DB: bdb}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 || ratio > 1 {
			ratio = 0.5
		}
		d.stopGC = make(chan struct{})
		d.gcDone = make(chan struct{})
		go d.runGC(cfg.GCInterval, ratio, cfg.Logger)
	}
	return d, nil
}

func (d *db) runGC(interval time.Duration, ratio float64, logger *slog.Logger) {
	defer close(d.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopGC:
			return
		case <-ticker.C:
			err := d.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && logger != nil {
				logger.Warn("badger value log GC error", slog.String("error", err.Error()))
			}
		}
	}
}

// Close stops GC and closes the database.
func (d *db) Close() error {
	if d.stopGC != nil {
		close(d.stopGC)
		<-d.gcDone
	}
	return d.DB.Close()
}

// update runs fn in a read-write transaction and commits it.
func (d *db) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	txn := d.NewTransaction(true)
	defer txn.Discard()
	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// view runs fn in a read-only transaction.
func (d *db) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	txn := d.NewTransaction(false)
	defer txn.Discard()
	return fn(txn)
}
