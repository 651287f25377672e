package store

import (
	"sync"

	"bookworm/internal/util"
)

// MemorySessionStore is a process-local SessionStore for tests.
type MemorySessionStore struct {
	mu     sync.Mutex
	byTok  map[string]string
}

// NewMemorySessionStore builds an empty MemorySessionStore.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{byTok: make(map[string]string)}
}

func (s *MemorySessionStore) NewSession(userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := util.NewID()
	s.byTok[token] = userID
	return token, nil
}

func (s *MemorySessionStore) GetUserIDByToken(token string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.byTok[token]
	return userID, ok, nil
}

func (s *MemorySessionStore) DeleteSession(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byTok, token)
	return nil
}
