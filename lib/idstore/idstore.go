// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package idstore persists the durable ids of base targets, keyed by
// the host path of the component they describe.
//
// The file form is a zstd-compressed CBOR snapshot of the whole
// key→id map. Every Put rewrites the snapshot through a temporary
// file and a rename, so a crash leaves either the old or the new
// snapshot, never a torn one.
package idstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/bureau-foundation/rship-exec/lib/codec"
)

// snapshotVersion is bumped when the snapshot layout changes.
const snapshotVersion = 1

type snapshot struct {
	Version int               `cbor:"version"`
	IDs     map[string]string `cbor:"ids"`
}

// Store is a file-backed id store. It is safe for concurrent use.
type Store struct {
	path string

	mu  sync.Mutex
	ids map[string]string
}

// Open loads the snapshot at path. A missing file yields an empty
// store; the file is created on the first Put.
func Open(path string) (*Store, error) {
	store := &Store{path: path, ids: make(map[string]string)}

	compressed, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading id store %s: %w", path, err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer decoder.Close()
	data, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing id store %s: %w", path, err)
	}

	var loaded snapshot
	if err := codec.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("decoding id store %s: %w", path, err)
	}
	if loaded.Version != snapshotVersion {
		return nil, fmt.Errorf("id store %s: unsupported version %d", path, loaded.Version)
	}
	for key, id := range loaded.IDs {
		store.ids[key] = id
	}
	return store, nil
}

// Get returns the id stored under key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.ids[key]
	return id, ok
}

// Put stores id under key and writes the snapshot. The in-memory
// value is updated even when the write fails.
func (s *Store) Put(key, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[key] = id
	return s.writeLocked()
}

// Len returns the number of stored ids.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

func (s *Store) writeLocked() error {
	data, err := codec.Marshal(snapshot{Version: snapshotVersion, IDs: s.ids})
	if err != nil {
		return fmt.Errorf("encoding id store: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("creating zstd encoder: %w", err)
	}
	compressed := encoder.EncodeAll(data, nil)
	encoder.Close()

	directory := filepath.Dir(s.path)
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("creating id store directory: %w", err)
	}
	temporary, err := os.CreateTemp(directory, ".idstore-*")
	if err != nil {
		return fmt.Errorf("creating temporary id store: %w", err)
	}
	defer os.Remove(temporary.Name())

	if _, err := temporary.Write(compressed); err != nil {
		temporary.Close()
		return fmt.Errorf("writing id store: %w", err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("closing id store: %w", err)
	}
	if err := os.Rename(temporary.Name(), s.path); err != nil {
		return fmt.Errorf("replacing id store %s: %w", s.path, err)
	}
	return nil
}

// Memory is an id store that lives only as long as the process.
type Memory struct {
	mu  sync.Mutex
	ids map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{ids: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.ids[key]
	return id, ok
}

func (m *Memory) Put(key, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[key] = id
	return nil
}
