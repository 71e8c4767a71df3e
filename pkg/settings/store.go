// Package settings holds the persisted-default store: the parameters a user
// last configured for each indicator, reused the next time that indicator is
// placed without explicit values.
//
// Writes are last-write-wins with no locking across editing sessions. The
// builder core never reads the store directly; callers Load a Snapshot at the
// boundary and hand it to the resolver.
package settings

import (
	"context"
	"fmt"
	"sync"

	"github.com/algomatic/statement-builder/pkg/statement"
)

// Store persists indicator defaults per client scope.
type Store interface {
	// Get returns the saved params for name, or nil when none exist.
	Get(ctx context.Context, scope, name string) (statement.Params, error)
	Set(ctx context.Context, scope, name string, params statement.Params) error
}

// Snapshot is a point-in-time copy of a scope's defaults. It satisfies
// indicators.Defaults.
type Snapshot map[string]statement.Params

// Lookup returns the saved params for name.
func (s Snapshot) Lookup(name string) (statement.Params, bool) {
	p, ok := s[name]
	return p, ok
}

// Load reads the defaults of every indicator in names.
func Load(ctx context.Context, store Store, scope string, names []string) (Snapshot, error) {
	snap := make(Snapshot, len(names))
	for _, name := range names {
		p, err := store.Get(ctx, scope, name)
		if err != nil {
			return nil, fmt.Errorf("loading %s defaults: %w", name, err)
		}
		if p != nil {
			snap[name] = p
		}
	}
	return snap, nil
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	scopes map[string]map[string]statement.Params
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scopes: make(map[string]map[string]statement.Params)}
}

func (m *MemoryStore) Get(_ context.Context, scope, name string) (statement.Params, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scopes[scope][name].Clone(), nil
}

func (m *MemoryStore) Set(_ context.Context, scope, name string, params statement.Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byName, ok := m.scopes[scope]
	if !ok {
		byName = make(map[string]statement.Params)
		m.scopes[scope] = byName
	}
	byName[name] = statement.NormalizeParams(params)
	return nil
}
