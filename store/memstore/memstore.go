// Package memstore is an in-memory store backend for tests and throwaway
// deployments.
package memstore

import (
	"context"
	"sort"
	"sync"

	serrors "github.com/jrsteele09/oauth-lite/internal/errors"
	"github.com/jrsteele09/oauth-lite/store"
)

type Store struct {
	mu     sync.RWMutex
	data   map[string]map[string][]byte
	closed bool
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	data := make(map[string]map[string][]byte, len(store.Collections))
	for _, c := range store.Collections {
		data[c] = make(map[string][]byte)
	}
	return &Store{data: data}
}

func (s *Store) View(ctx context.Context, fn func(store.Tx) error) error {
	if tx, ok, err := store.Joined(ctx, false); ok || err != nil {
		if err != nil {
			return err
		}
		return fn(tx)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return serrors.ErrStoreClosed
	}
	return fn(&memTx{data: s.data})
}

// Update runs fn against a copy of the data and swaps it in only when fn
// succeeds.
func (s *Store) Update(ctx context.Context, fn func(store.Tx) error) error {
	if tx, ok, err := store.Joined(ctx, true); ok || err != nil {
		if err != nil {
			return err
		}
		return fn(tx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return serrors.ErrStoreClosed
	}
	staged := clone(s.data)
	if err := fn(&memTx{data: staged, writable: true}); err != nil {
		return err
	}
	s.data = staged
	return nil
}

func (s *Store) Flush() error {
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func clone(data map[string]map[string][]byte) map[string]map[string][]byte {
	out := make(map[string]map[string][]byte, len(data))
	for c, entries := range data {
		copied := make(map[string][]byte, len(entries))
		for k, v := range entries {
			copied[k] = v
		}
		out[c] = copied
	}
	return out
}

type memTx struct {
	data     map[string]map[string][]byte
	writable bool
}

func (t *memTx) Get(collection, key string) ([]byte, error) {
	return t.data[collection][key], nil
}

func (t *memTx) Put(collection, key string, value []byte) error {
	if !t.writable {
		return serrors.ErrReadOnlyTx
	}
	entries, ok := t.data[collection]
	if !ok {
		entries = make(map[string][]byte)
		t.data[collection] = entries
	}
	entries[key] = append([]byte(nil), value...)
	return nil
}

func (t *memTx) Delete(collection, key string) error {
	if !t.writable {
		return serrors.ErrReadOnlyTx
	}
	delete(t.data[collection], key)
	return nil
}

func (t *memTx) ForEach(collection string, fn func(key string, value []byte) error) error {
	entries := t.data[collection]
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn(k, entries[k]); err != nil {
			return err
		}
	}
	return nil
}

func (t *memTx) Writable() bool {
	return t.writable
}
