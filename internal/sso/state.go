package sso

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

// StateTTL bounds a state value to the user's authorization round trip,
// and is a sensible interval for pruning abandoned attempts.
const StateTTL = 5 * time.Minute

// StateStore issues single-use CSRF state values for the authorization
// flow. A value is consumed exactly once; lookup removes it whether or
// not validation succeeds.
type StateStore struct {
	mu     sync.Mutex
	issued map[string]time.Time
	now    func() time.Time
}

func NewStateStore() *StateStore {
	return &StateStore{
		issued: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Issue generates a cryptographically random state value and records it
// for one round trip.
func (s *StateStore) Issue() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	state := base64.RawURLEncoding.EncodeToString(buf)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued[state] = s.now().Add(StateTTL)
	return state, nil
}

// Consume removes the state and reports whether it was live. A second
// call for the same value always returns false.
func (s *StateStore) Consume(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline, ok := s.issued[state]
	if !ok {
		return false
	}
	delete(s.issued, state)
	return s.now().Before(deadline)
}

// Prune drops expired state values; safe to call at any time.
func (s *StateStore) Prune() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for state, deadline := range s.issued {
		if !now.Before(deadline) {
			delete(s.issued, state)
		}
	}
}
