package session

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps records in process memory, indexed by user.
type MemoryStore struct {
	mu        sync.RWMutex
	userIndex map[string][]Record // userID → records, newest first
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{userIndex: make(map[string][]Record)}
}

// Append implements Store.
func (m *MemoryStore) Append(ctx context.Context, r *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := prepare(r); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	recs := m.userIndex[r.UserID]
	// Insert ahead of anything not newer, so equal timestamps list the
	// latest insert first.
	i := sort.Search(len(recs), func(i int) bool {
		return !recs[i].CreatedAt.After(r.CreatedAt)
	})
	recs = append(recs, Record{})
	copy(recs[i+1:], recs[i:])
	recs[i] = *r
	m.userIndex[r.UserID] = recs
	return nil
}

// Recent implements Store.
func (m *MemoryStore) Recent(ctx context.Context, userID string, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := m.userIndex[userID]
	n := window(limit)
	if n > len(recs) {
		n = len(recs)
	}
	out := make([]Record, n)
	copy(out, recs[:n])
	return out, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
