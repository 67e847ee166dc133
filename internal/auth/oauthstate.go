package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// DefaultStateTTL bounds how long an issued OAuth state stays valid.
const DefaultStateTTL = 5 * time.Minute

// OAuthStateStore issues single-use CSRF state tokens for the OAuth
// redirect flow. A state is consumed at most once: lookup and deletion
// happen inside one critical section, so concurrent callbacks with the
// same state cannot both pass.
type OAuthStateStore struct {
	mu     sync.Mutex
	states map[string]time.Time
	ttl    time.Duration
	now    func() time.Time
}

func NewOAuthStateStore(ttl time.Duration) *OAuthStateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &OAuthStateStore{
		states: make(map[string]time.Time),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue generates a random opaque state and registers it with the store's
// TTL. The token only has to be unguessable within that window.
func (s *OAuthStateStore) Issue() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generating oauth state: %w", err)
	}
	state := hex.EncodeToString(buf)

	s.mu.Lock()
	s.states[state] = s.now().Add(s.ttl)
	s.mu.Unlock()

	return state, nil
}

// Consume validates and deletes a state in one step. It returns true for
// a known, unexpired state exactly once; unknown, expired and replayed
// states are all rejected. Expired entries are deleted on the way out.
func (s *OAuthStateStore) Consume(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, ok := s.states[state]
	if !ok {
		return false
	}
	delete(s.states, state)
	return s.now().Before(expiresAt)
}

// Sweep deletes expired states that were never consumed, bounding map
// growth from abandoned login attempts. Returns the eviction count.
func (s *OAuthStateStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for state, expiresAt := range s.states {
		if expiresAt.Before(now) {
			delete(s.states, state)
			evicted++
		}
	}
	return evicted
}

// Pending returns the number of outstanding states.
func (s *OAuthStateStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
