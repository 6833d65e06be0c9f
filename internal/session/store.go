package session

import (
	"sort"
	"sync"
)

// Store tracks the sessions that are currently streaming.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
	}
}

func (s *Store) Add(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

func (s *Store) Get(id string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Snapshot{}, false
	}
	return sess.Snapshot(), true
}

// GetAll returns snapshots ordered by start time.
func (s *Store) GetAll() []Snapshot {
	s.mu.RLock()
	result := make([]Snapshot, 0, len(s.sessions))
	for _, sess := range s.sessions {
		result = append(result, sess.Snapshot())
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.Before(result[j].StartedAt)
	})
	return result
}

func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, sess := range s.sessions {
		if !sess.State().IsTerminal() {
			count++
		}
	}
	return count
}
