// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Protec Rescue Contributors

package kv

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store used by tests and single-node
// deployments that do not need durable persistence.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[Collection]map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[Collection]map[string][]byte),
	}
}

// Get returns the record stored under (collection, key), or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, collection Collection, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[collection][key]
	if !ok {
		return nil, ErrNotFound
	}

	// Copy so callers cannot mutate stored bytes.
	out := make([]byte, len(record))
	copy(out, record)
	return out, nil
}

// Put stores the record under (collection, key).
func (s *MemoryStore) Put(_ context.Context, collection Collection, key string, record []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records[collection] == nil {
		s.records[collection] = make(map[string][]byte)
	}

	stored := make([]byte, len(record))
	copy(stored, record)
	s.records[collection][key] = stored
	return nil
}

// Delete removes the record under (collection, key) if present.
func (s *MemoryStore) Delete(_ context.Context, collection Collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records[collection], key)
	return nil
}

// Close is a no-op for the in-memory driver.
func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of records in a collection. Test helper.
func (s *MemoryStore) Len(collection Collection) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[collection])
}
