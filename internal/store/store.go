// Package store abstracts the shared document substrate. The engine never
// touches raw I/O: it loads snapshots and mutates through Atomically, which
// re-reads immediately before the mutation and persists with an atomic
// replace. Correctness under uncoordinated writers rests on that
// re-read-verify-rename cycle, not on any lock service.
package store

import "sync"

// Store is one document's storage.
type Store interface {
	// Load returns the current document bytes.
	Load() ([]byte, error)
	// Atomically runs mutate against a fresh read of the document and, when
	// mutate asks for a write, replaces the document atomically. A mutate
	// error aborts without writing.
	Atomically(mutate func(current []byte) (updated []byte, write bool, err error)) error
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu   sync.Mutex
	data []byte
}

func NewMemStore(initial []byte) *MemStore {
	d := make([]byte, len(initial))
	copy(d, initial)
	return &MemStore{data: d}
}

func (m *MemStore) Load() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out, nil
}

func (m *MemStore) Atomically(mutate func([]byte) ([]byte, bool, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := make([]byte, len(m.data))
	copy(cur, m.data)
	updated, write, err := mutate(cur)
	if err != nil {
		return err
	}
	if write {
		m.data = make([]byte, len(updated))
		copy(m.data, updated)
	}
	return nil
}
