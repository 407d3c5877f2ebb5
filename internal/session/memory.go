package session

import (
	"context"
	"sync"
	"time"

	errors "github.com/Laisky/errors/v2"
)

type memoryEntry struct {
	state     State
	expiresAt time.Time
}

// MemoryStore is the default backend. Everything is lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[int64]memoryEntry
}

// NewMemoryStore creates a store whose entries expire after ttl (0 disables expiry).
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[int64]memoryEntry),
	}
}

func (m *MemoryStore) Get(_ context.Context, userID int64) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[userID]
	if !ok {
		return Idle(), nil
	}
	if !e.expiresAt.IsZero() && m.now().After(e.expiresAt) {
		delete(m.entries, userID)
		return Idle(), nil
	}
	return e.state, nil
}

func (m *MemoryStore) Set(ctx context.Context, userID int64, st State) error {
	if !st.Valid() {
		return errors.Wrapf(ErrInvalidState, "%s", st)
	}
	if st.IsIdle() {
		return m.Clear(ctx, userID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{state: st}
	if m.ttl > 0 {
		e.expiresAt = m.now().Add(m.ttl)
	}
	m.entries[userID] = e
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, userID)
	return nil
}

// Len reports the number of stored, possibly expired, entries.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
