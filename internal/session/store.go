// ABOUTME: In-memory keyed session store with per-session mutual exclusion
// ABOUTME: GetOrCreate is atomic so first-contact races yield exactly one state

package session

import (
	"sort"
	"sync"
	"time"
)

// Store holds live conversation state keyed by session id. The map lock is
// held only for lookups and inserts; the mutex handed out by Lock serializes
// whole turns, including the model round trip, per session.
type Store struct {
	mu     sync.RWMutex
	states map[string]*State
	locks  map[string]*sync.Mutex
}

// NewStore returns an empty store. Sessions live for the process lifetime;
// there is no eviction.
func NewStore() *Store {
	return &Store{
		states: make(map[string]*State),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Lock acquires the session's own mutex and returns its release func. The
// mutex exists before the state does, so first-contact races for the same
// id serialize here and exactly one caller ends up creating the session.
func (s *Store) Lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// GetOrCreate returns the state for id, creating it when absent. created
// reports whether this call made it.
func (s *Store) GetOrCreate(id string) (st *State, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.states[id]; ok {
		return st, false
	}
	if _, ok := s.locks[id]; !ok {
		s.locks[id] = &sync.Mutex{}
	}
	st = newState(id, time.Now())
	s.states[id] = st
	return st, true
}

// Get returns the live state for id. The caller must hold the session lock
// to touch it.
func (s *Store) Get(id string) (*State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[id]
	return st, ok
}

// Snapshot returns a deep copy of the session, safe to read without any
// lock. It briefly takes the session mutex, so it can block behind a turn
// in flight.
func (s *Store) Snapshot(id string) (*State, bool) {
	s.mu.RLock()
	st, ok := s.states[id]
	l := s.locks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	l.Lock()
	defer l.Unlock()
	return st.clone(), true
}

// Len returns the number of known sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

// IDs returns every known session id, sorted.
func (s *Store) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// IDsByStatus returns the ids of sessions currently in the given status.
// Each session is inspected under its own mutex, so a turn in flight is
// never raced; the answer is a point-in-time view.
func (s *Store) IDsByStatus(status Status) []string {
	var out []string
	for _, id := range s.IDs() {
		s.mu.RLock()
		st, ok := s.states[id]
		l := s.locks[id]
		s.mu.RUnlock()
		if !ok {
			continue
		}

		l.Lock()
		match := st.Status == status
		l.Unlock()
		if match {
			out = append(out, id)
		}
	}
	return out
}
