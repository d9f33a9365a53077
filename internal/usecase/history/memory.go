package history

import (
	"sync"

	"yinsen/internal/domain"
)

// MemoryStore is a domain.HistoryStore that never touches disk.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []domain.Message
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(msg domain.Message) {
	s.mu.Lock()
	s.entries = append(s.entries, msg)
	s.mu.Unlock()
}

func (s *MemoryStore) Entries() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMessages(s.entries)
}

func (s *MemoryStore) Window(n int) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return window(s.entries, n)
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Save is a no-op.
func (s *MemoryStore) Save() error { return nil }
