package session

import "sync"

// MemoryStore is a thread-safe in-memory Store. Sessions are lost on
// server restart; it backs local development and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Session
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Session)}
}

func (s *MemoryStore) Get(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.data[id]
	return sess, ok
}

func (s *MemoryStore) Put(id string, sess Session) {
	s.mu.Lock()
	s.data[id] = sess
	s.mu.Unlock()
}

func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	delete(s.data, id)
	s.mu.Unlock()
}
