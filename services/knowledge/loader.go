// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package knowledge

import (
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Loader loads a Store at most once per Loader lifetime.
//
// # Description
//
// Get is safe to call from many goroutines at once: concurrent first calls
// share a single load through singleflight, and later calls return the
// cached Store without locking.
//
// # Example
//
//	loader := knowledge.NewLoader(knowledge.EmbeddedSource(), logger)
//	store := loader.Get()
type Loader struct {
	source Source
	logger *slog.Logger
	group  singleflight.Group
	store  atomic.Pointer[Store]
	loads  atomic.Int64
}

// NewLoader returns a Loader for src. logger may be nil.
func NewLoader(src Source, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{source: src, logger: logger}
}

// Get returns the Store, loading it on first use.
func (l *Loader) Get() *Store {
	if s := l.store.Load(); s != nil {
		return s
	}
	v, _, _ := l.group.Do("knowledge", func() (interface{}, error) {
		if s := l.store.Load(); s != nil {
			return s, nil
		}
		s := Load(l.source, l.logger)
		l.loads.Add(1)
		l.store.Store(s)
		return s, nil
	})
	return v.(*Store)
}

// Loads reports how many times the source was actually read.
func (l *Loader) Loads() int64 { return l.loads.Load() }
