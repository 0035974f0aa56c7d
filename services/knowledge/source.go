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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/wirepro/wirepro/services/knowledge/data"
)

// collectionExtensions are tried in order when resolving a collection file.
// JSON files are read by the YAML parser, which accepts them as-is.
var collectionExtensions = []string{".yaml", ".yml", ".json"}

// ErrCollectionNotFound is returned when no file backs a collection.
var ErrCollectionNotFound = errors.New("knowledge collection not found")

// Source supplies the raw bytes of a named collection.
type Source interface {
	// Name identifies the source in logs ("embedded", a directory path).
	Name() string

	// ReadCollection returns the raw document for the collection.
	ReadCollection(collection string) ([]byte, error)
}

// fsSource reads collections from any fs.FS.
type fsSource struct {
	name   string
	fsys   fs.FS
	prefix string
}

// EmbeddedSource returns the knowledge base compiled into the binary.
func EmbeddedSource() Source {
	return &fsSource{name: "embedded", fsys: data.Files}
}

// DirSource returns a Source that reads "<collection>.yaml|.yml|.json"
// files from dir.
func DirSource(dir string) Source {
	return &fsSource{name: filepath.Clean(dir), fsys: os.DirFS(dir)}
}

func (s *fsSource) Name() string { return s.name }

func (s *fsSource) ReadCollection(collection string) ([]byte, error) {
	for _, ext := range collectionExtensions {
		raw, err := fs.ReadFile(s.fsys, collection+ext)
		if err == nil {
			return raw, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s%s: %w", collection, ext, err)
		}
	}
	return nil, fmt.Errorf("%w: %s in %s", ErrCollectionNotFound, collection, s.name)
}

// MapSource serves collections from memory. Used by tests and tools.
type MapSource map[string][]byte

func (m MapSource) Name() string { return "memory" }

func (m MapSource) ReadCollection(collection string) ([]byte, error) {
	raw, ok := m[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s in memory", ErrCollectionNotFound, collection)
	}
	return raw, nil
}
