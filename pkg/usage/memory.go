package usage

import (
	"sync"

	"mealsnap/pkg/provider/types"
)

// MemoryStore is an in-process Store, used by tests and as a fallback when
// no database path is configured.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[types.Provider]Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[types.Provider]Entry{}}
}

func (s *MemoryStore) Get(provider types.Provider) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[provider]
	return entry, ok, nil
}

func (s *MemoryStore) Put(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.Provider] = entry
	return nil
}

func (s *MemoryStore) All() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	return entries, nil
}
