package allowlist

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-messaging/core"
)

// MemoryStore keeps entries per scope in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[core.AllowlistScope]map[string]core.AllowlistEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[core.AllowlistScope]map[string]core.AllowlistEntry{}}
}

func (s *MemoryStore) Load(_ context.Context, scope core.AllowlistScope) ([]core.AllowlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := s.entries[scope]
	out := make([]core.AllowlistEntry, 0, len(items))
	for _, entry := range items {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Identifier < out[j].Identifier
	})
	return out, nil
}

func (s *MemoryStore) Upsert(_ context.Context, entry core.AllowlistEntry) error {
	identifier := strings.TrimSpace(entry.Identifier)
	if identifier == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.entries[entry.Scope]
	if items == nil {
		items = map[string]core.AllowlistEntry{}
		s.entries[entry.Scope] = items
	}
	if _, ok := items[identifier]; ok {
		return nil
	}
	entry.Identifier = identifier
	items[identifier] = entry
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, scope core.AllowlistScope, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries[scope], strings.TrimSpace(identifier))
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, scope core.AllowlistScope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, scope)
	return nil
}

var _ core.AllowlistStore = (*MemoryStore)(nil)
