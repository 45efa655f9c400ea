package history

import "sync"

// MemoryStore keeps entries in process memory. It backs tests and acts as a
// stand-in where no durable transcript is wanted.
type MemoryStore struct {
	mu     sync.Mutex
	scopes map[Scope][]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scopes: make(map[Scope][]Entry)}
}

func (s *MemoryStore) Append(scope Scope, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes[scope] = append(s.scopes[scope], entry)
	return nil
}

func (s *MemoryStore) Query(scope Scope, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultReplayLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.scopes[scope]
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out, nil
}
