package store

import (
	"sync"
	"time"

	"murojaat/internal/util"
)

// MemorySessionStore keeps token -> user ID mappings in-process.
type MemorySessionStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	sess map[string]memorySession
	now  func() time.Time
}

type memorySession struct {
	userID    string
	expiresAt time.Time
}

// NewMemorySessionStore builds a session store that forgets tokens after ttl.
// A zero ttl keeps sessions until logout.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		ttl:  ttl,
		sess: make(map[string]memorySession),
		now:  time.Now,
	}
}

// NewSession creates a session token for a user.
func (s *MemorySessionStore) NewSession(userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := util.NewID()
	for _, taken := s.sess[token]; taken; _, taken = s.sess[token] {
		token = util.NewID()
	}
	var exp time.Time
	if s.ttl > 0 {
		exp = s.now().Add(s.ttl)
	}
	s.sess[token] = memorySession{userID: userID, expiresAt: exp}
	return token, nil
}

// GetUserIDByToken returns the user bound to a token.
func (s *MemorySessionStore) GetUserIDByToken(token string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sess[token]
	if !ok {
		return "", false, nil
	}
	if !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		delete(s.sess, token)
		return "", false, nil
	}
	return entry.userID, true, nil
}

// DeleteSession removes a token.
func (s *MemorySessionStore) DeleteSession(token string) error {
	s.mu.Lock()
	delete(s.sess, token)
	s.mu.Unlock()
	return nil
}
