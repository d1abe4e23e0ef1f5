package match

import (
	"sync"

	"github.com/google/uuid"
)

// Store is the process-owned registry of live matches. It is constructed at
// bootstrap and torn down at shutdown; a finished match is removed and no
// longer observable by lookup.
type Store struct {
	mu      sync.RWMutex
	matches map[uuid.UUID]*ActiveMatch
}

// NewStore creates an empty match store.
func NewStore() *Store {
	return &Store{matches: make(map[uuid.UUID]*ActiveMatch)}
}

// Put inserts a match.
func (s *Store) Put(m *ActiveMatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[m.MatchID] = m
}

// Get returns the live match with the given ID, if any.
func (s *Store) Get(matchID uuid.UUID) (*ActiveMatch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[matchID]
	return m, ok
}

// Delete removes a match from the registry.
func (s *Store) Delete(matchID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.matches, matchID)
}

// ByUser returns the live match a user participates in, if any.
func (s *Store) ByUser(userID uuid.UUID) (*ActiveMatch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.matches {
		if m.player(userID) != nil {
			return m, true
		}
	}
	return nil, false
}

// Count returns the number of live matches.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matches)
}

// Drain removes and returns all live matches, used on shutdown so the
// controller can stop their timers.
func (s *Store) Drain() []*ActiveMatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	drained := make([]*ActiveMatch, 0, len(s.matches))
	for _, m := range s.matches {
		drained = append(drained, m)
	}
	s.matches = make(map[uuid.UUID]*ActiveMatch)
	return drained
}
