package passive

import "sync"

// StateStore holds per-entity passive counters for one battle. It is safe
// for concurrent use.
type StateStore struct {
	mu    sync.Mutex
	state map[string]map[string]int
}

// NewStateStore creates an empty store.
func NewStateStore() *StateStore {
	return &StateStore{state: make(map[string]map[string]int)}
}

// Get returns the counter key of entityID; missing counters are 0.
func (s *StateStore) Get(entityID, key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state[entityID][key]
}

// Set stores value under key for entityID.
func (s *StateStore) Set(entityID, key string, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entity(entityID)[key] = value
}

// Add adds delta to the counter and returns the new value.
func (s *StateStore) Add(entityID, key string, delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.entity(entityID)
	m[key] += delta
	return m[key]
}

// Snapshot returns a copy of every counter of entityID.
func (s *StateStore) Snapshot(entityID string) map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.state[entityID]))
	for k, v := range s.state[entityID] {
		out[k] = v
	}
	return out
}

// Clear drops all counters of entityID.
func (s *StateStore) Clear(entityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state, entityID)
}

func (s *StateStore) entity(id string) map[string]int {
	m, ok := s.state[id]
	if !ok {
		m = make(map[string]int)
		s.state[id] = m
	}
	return m
}
