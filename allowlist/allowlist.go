package allowlist

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/identity"
)

// Allowlist is a persisted set of identifiers for one scope with an in-memory
// mirror that answers Has without touching the store.
type Allowlist struct {
	Now func() time.Time

	scope core.AllowlistScope
	store core.AllowlistStore

	mu      sync.RWMutex
	entries map[string]core.AllowlistEntry
	// loading counts Initialize calls waiting on the store. While it is
	// non-zero every mirror change is journaled so a reload can replay it.
	loading int
	journal []mutation
}

type mutation struct {
	entry   core.AllowlistEntry
	removed bool
	cleared bool
}

func (m mutation) apply(entries map[string]core.AllowlistEntry) {
	switch {
	case m.cleared:
		clear(entries)
	case m.removed:
		delete(entries, m.entry.Identifier)
	default:
		entries[m.entry.Identifier] = m.entry
	}
}

func New(scope core.AllowlistScope, store core.AllowlistStore) (*Allowlist, error) {
	if !scope.Valid() {
		return nil, fmt.Errorf("allowlist: unsupported scope %q", scope)
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Allowlist{
		Now:     func() time.Time { return time.Now().UTC() },
		scope:   scope,
		store:   store,
		entries: map[string]core.AllowlistEntry{},
	}, nil
}

func (a *Allowlist) Scope() core.AllowlistScope {
	return a.scope
}

// Initialize replaces the mirror with what the store holds. Adds, removes and
// clears that land while the store is being read are replayed on top of the
// loaded entries.
func (a *Allowlist) Initialize(ctx context.Context) error {
	a.mu.Lock()
	a.loading++
	start := len(a.journal)
	a.mu.Unlock()

	loaded, err := a.store.Load(ctx, a.scope)

	a.mu.Lock()
	defer a.mu.Unlock()
	defer func() {
		if a.loading--; a.loading == 0 {
			a.journal = nil
		}
	}()
	if err != nil {
		return fmt.Errorf("allowlist: load %s: %w", a.scope, err)
	}
	entries := make(map[string]core.AllowlistEntry, len(loaded))
	for _, entry := range loaded {
		identifier := a.normalize(entry.Identifier)
		if identifier == "" {
			continue
		}
		entry.Identifier = identifier
		entry.Scope = a.scope
		entries[identifier] = entry
	}
	for _, change := range a.journal[start:] {
		change.apply(entries)
	}
	a.entries = entries
	return nil
}

func (a *Allowlist) Add(ctx context.Context, identifier string, addedBy string) (core.AllowlistEntry, error) {
	normalized := a.normalize(identifier)
	if normalized == "" {
		return core.AllowlistEntry{}, fmt.Errorf("allowlist: identifier is required")
	}

	a.mu.RLock()
	existing, ok := a.entries[normalized]
	a.mu.RUnlock()
	if ok {
		if err := a.store.Upsert(ctx, existing); err != nil {
			return core.AllowlistEntry{}, fmt.Errorf("allowlist: persist %s: %w", a.scope, err)
		}
		return existing, nil
	}

	entry := core.AllowlistEntry{
		Identifier: normalized,
		Scope:      a.scope,
		AddedBy:    strings.TrimSpace(addedBy),
		AddedAt:    a.now(),
	}
	if err := a.store.Upsert(ctx, entry); err != nil {
		return core.AllowlistEntry{}, fmt.Errorf("allowlist: persist %s: %w", a.scope, err)
	}

	a.mu.Lock()
	if current, ok := a.entries[normalized]; ok {
		entry = current
	}
	a.record(mutation{entry: entry})
	a.mu.Unlock()
	return entry, nil
}

func (a *Allowlist) Has(identifier string) bool {
	normalized := a.normalize(identifier)
	if normalized == "" {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.entries[normalized]
	return ok
}

func (a *Allowlist) Remove(ctx context.Context, identifier string) error {
	normalized := a.normalize(identifier)
	if normalized == "" {
		return fmt.Errorf("allowlist: identifier is required")
	}
	if err := a.store.Delete(ctx, a.scope, normalized); err != nil {
		return fmt.Errorf("allowlist: delete %s: %w", a.scope, err)
	}
	a.mu.Lock()
	a.record(mutation{entry: core.AllowlistEntry{Identifier: normalized, Scope: a.scope}, removed: true})
	a.mu.Unlock()
	return nil
}

func (a *Allowlist) Clear(ctx context.Context) error {
	if err := a.store.Clear(ctx, a.scope); err != nil {
		return fmt.Errorf("allowlist: clear %s: %w", a.scope, err)
	}
	a.mu.Lock()
	a.record(mutation{cleared: true})
	a.mu.Unlock()
	return nil
}

// List returns the mirror sorted by identifier.
func (a *Allowlist) List() []core.AllowlistEntry {
	a.mu.RLock()
	out := make([]core.AllowlistEntry, 0, len(a.entries))
	for _, entry := range a.entries {
		out = append(out, entry)
	}
	a.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Identifier < out[j].Identifier
	})
	return out
}

// record applies change to the mirror. Callers hold the write lock.
func (a *Allowlist) record(change mutation) {
	change.apply(a.entries)
	if a.loading > 0 {
		a.journal = append(a.journal, change)
	}
}

func (a *Allowlist) normalize(identifier string) string {
	return identity.NormalizeForScope(a.scope, identifier)
}

func (a *Allowlist) now() time.Time {
	if a.Now != nil {
		return a.Now().UTC()
	}
	return time.Now().UTC()
}

var _ core.Allowlist = (*Allowlist)(nil)
