package lifecycle

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps namespaces in process memory.
type MemoryStore struct {
	mutex      sync.RWMutex
	namespaces map[string]struct{}
}

// NewMemoryStore creates a store pre-populated with names.
func NewMemoryStore(names ...string) *MemoryStore {
	s := &MemoryStore{namespaces: make(map[string]struct{}, len(names))}
	for _, n := range names {
		s.namespaces[n] = struct{}{}
	}
	return s
}

func (s *MemoryStore) Namespaces(_ context.Context) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	names := make([]string, 0, len(s.namespaces))
	for n := range s.namespaces {
		names = append(names, n)
	}
	sort.Strings(names)

	return names, nil
}

func (s *MemoryStore) Open(_ context.Context, name string) error {
	if name == "" {
		return ErrEmptyNamespace
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.namespaces[name] = struct{}{}

	return nil
}

func (s *MemoryStore) Delete(_ context.Context, name string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.namespaces, name)

	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
