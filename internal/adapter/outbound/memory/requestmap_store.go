// Package memory provides in-memory store implementations for
// development and testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/routeguard/routeguard/internal/domain/access"
)

// RequestmapStore implements access.RequestmapStore with an in-memory map.
// Thread-safe for concurrent access. For development/testing only.
type RequestmapStore struct {
	entries map[string]*access.RequestmapEntry
	mu      sync.RWMutex
}

// NewRequestmapStore creates a new in-memory requestmap store.
func NewRequestmapStore() *RequestmapStore {
	return &RequestmapStore{
		entries: make(map[string]*access.RequestmapEntry),
	}
}

// ListEntries returns all entries ordered by creation time, then ID, so
// repeated snapshot builds see the same declaration order.
func (s *RequestmapStore) ListEntries(ctx context.Context) ([]access.RequestmapEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]access.RequestmapEntry, 0, len(s.entries))
	for _, e := range s.entries {
		result = append(result, *copyEntry(e))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// GetEntry returns an entry by ID.
// Returns access.ErrEntryNotFound if the entry doesn't exist.
func (s *RequestmapStore) GetEntry(ctx context.Context, id string) (*access.RequestmapEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, access.ErrEntryNotFound
	}
	return copyEntry(e), nil
}

// SaveEntry creates or updates an entry, assigning a UUID when ID is empty.
func (s *RequestmapStore) SaveEntry(ctx context.Context, e *access.RequestmapEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
		e.CreatedAt = now
	} else if existing, ok := s.entries[e.ID]; ok {
		e.CreatedAt = existing.CreatedAt
	} else if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	// Store a copy to prevent external mutation.
	s.entries[e.ID] = copyEntry(e)
	return nil
}

// DeleteEntry removes an entry by ID.
// Returns access.ErrEntryNotFound if the entry doesn't exist.
func (s *RequestmapStore) DeleteEntry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return access.ErrEntryNotFound
	}
	delete(s.entries, id)
	return nil
}

func copyEntry(e *access.RequestmapEntry) *access.RequestmapEntry {
	out := *e
	out.Access = append([]string(nil), e.Access...)
	return &out
}

// Compile-time interface verification.
var _ access.RequestmapStore = (*RequestmapStore)(nil)
