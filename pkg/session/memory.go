package session

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is how long an idle session is kept.
const DefaultTTL = 24 * time.Hour

type memoryEntry struct {
	values    map[string]string
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory. Every access slides the
// session's expiry forward by the TTL. Expired sessions are dropped
// lazily when opened and by [MemoryStore.Sweep].
//
// MemoryStore is safe for concurrent use.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memoryEntry
	ttl      time.Duration
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store. A non-positive ttl uses
// [DefaultTTL].
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		sessions: make(map[string]*memoryEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Open implements [Store].
func (s *MemoryStore) Open(_ context.Context, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[id]; ok && !s.now().Before(e.expiresAt) {
		delete(s.sessions, id)
	}
	return &memorySession{store: s, id: id}, nil
}

// Len returns the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes expired sessions and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, e := range s.sessions {
		if !now.Before(e.expiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// entryLocked returns the live entry for id, creating it when create is
// set. Caller must hold s.mu.
func (s *MemoryStore) entryLocked(id string, create bool) *memoryEntry {
	now := s.now()
	e, ok := s.sessions[id]
	if ok && !now.Before(e.expiresAt) {
		delete(s.sessions, id)
		ok = false
	}
	if !ok {
		if !create {
			return nil
		}
		e = &memoryEntry{values: make(map[string]string)}
		s.sessions[id] = e
	}
	e.expiresAt = now.Add(s.ttl)
	return e
}

type memorySession struct {
	store *MemoryStore
	id    string
}

func (m *memorySession) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := m.Get(ctx, key)
	return ok, err
}

func (m *memorySession) Get(_ context.Context, key string) (string, bool, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	e := m.store.entryLocked(m.id, false)
	if e == nil {
		return "", false, nil
	}
	v, ok := e.values[key]
	return v, ok, nil
}

func (m *memorySession) Set(_ context.Context, key, value string) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.entryLocked(m.id, true).values[key] = value
	return nil
}

func (m *memorySession) Remove(_ context.Context, key string) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if e := m.store.entryLocked(m.id, false); e != nil {
		delete(e.values, key)
	}
	return nil
}
