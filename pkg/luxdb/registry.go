package luxdb

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
)

// Registry is a process-wide cache of store instances keyed by data
// file path. One lock instance guards exactly one table, so handing two
// independently opened stores the same file would defeat the mutual
// exclusion; the registry gives callers a single shared instance per
// path instead.
//
// Explicit component with a defined lifecycle rather than implicit
// global state. Safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	stores map[string]io.Closer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{stores: make(map[string]io.Closer)}
}

// Get returns the store registered for path, if any.
func (r *Registry) Get(path string) (io.Closer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	store, ok := r.stores[filepath.Clean(path)]

	return store, ok
}

// Add registers store under path. Fails if the path is already
// registered; use [Registry.Remove] first to replace an instance.
func (r *Registry) Add(path string, store io.Closer) error {
	if store == nil {
		return errors.New("registry: store is nil")
	}

	key := filepath.Clean(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.stores[key]; ok {
		return fmt.Errorf("registry: %s already registered", key)
	}

	r.stores[key] = store

	return nil
}

// Remove closes and drops the store registered for path.
// Removing an unknown path is a no-op.
func (r *Registry) Remove(path string) error {
	key := filepath.Clean(path)

	r.mu.Lock()
	store, ok := r.stores[key]
	delete(r.stores, key)
	r.mu.Unlock()

	if !ok {
		return nil
	}

	return store.Close()
}

// Clear closes and drops every registered store.
func (r *Registry) Clear() error {
	r.mu.Lock()
	stores := r.stores
	r.stores = make(map[string]io.Closer)
	r.mu.Unlock()

	var errs []error

	for path, store := range stores {
		err := store.Close()
		if err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", path, err))
		}
	}

	return errors.Join(errs...)
}

// Len reports the number of registered stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.stores)
}

// OpenShared returns the store registered for cfg.Path, opening and
// registering a new one if absent. Fails if the registered instance was
// opened with a different record type.
func OpenShared[T any](r *Registry, cfg Config[T]) (*DB[T], error) {
	key := filepath.Clean(cfg.Path)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.stores[key]; ok {
		db, ok := existing.(*DB[T])
		if !ok {
			return nil, fmt.Errorf("registry: %s registered with a different record type", key)
		}

		return db, nil
	}

	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	r.stores[key] = db

	return db, nil
}
