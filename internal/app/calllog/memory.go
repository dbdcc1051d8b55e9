package calllog

import (
	"context"
	"sync"
)

// maxMemoryEntries bounds the in-memory store; the oldest records are discarded first.
const maxMemoryEntries = 1000

// MemoryStore keeps call records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, entry)
	if over := len(s.entries) - maxMemoryEntries; over > 0 {
		s.entries = append(s.entries[:0:0], s.entries[over:]...)
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context, a, b string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []Entry{}
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if (e.From == a && e.To == b) || (e.From == b && e.To == a) {
			result = append(result, e)
			if limit > 0 && len(result) == limit {
				break
			}
		}
	}
	return result, nil
}
