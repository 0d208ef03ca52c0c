package router

import "sync"

// decayThreshold is the counter value past which all counters are decayed.
const decayThreshold = 1000

// decayFactor bounds counter growth without resetting relative ordering.
const decayFactor = 0.9

// LoadCounterStore tracks per-server running request counts for the
// least-connections strategy. It is shared by every routing decision, so
// all access goes through one mutex; callers only ever see copies.
type LoadCounterStore struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewLoadCounterStore creates an empty counter store.
func NewLoadCounterStore() *LoadCounterStore {
	return &LoadCounterStore{
		counters: make(map[string]int64),
	}
}

// Increment bumps a server's counter. Once a counter exceeds the decay
// threshold every counter is multiplied by the decay factor (floored),
// preserving relative ordering while bounding growth.
func (s *LoadCounterStore) Increment(serverID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters[serverID]++
	if s.counters[serverID] > decayThreshold {
		for id, c := range s.counters {
			s.counters[id] = int64(float64(c) * decayFactor)
		}
	}
}

// Get returns a server's current counter value.
func (s *LoadCounterStore) Get(serverID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[serverID]
}

// Snapshot returns a copy of all counters.
func (s *LoadCounterStore) Snapshot() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int64, len(s.counters))
	for id, c := range s.counters {
		out[id] = c
	}
	return out
}

// Reset clears all counters.
func (s *LoadCounterStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = make(map[string]int64)
}

// RoundRobinStore advances a counter per candidate set for the round-robin
// strategy. The key is the sorted, comma-joined set of candidate server ids,
// so the same candidate set always cycles through one shared counter.
type RoundRobinStore struct {
	mu       sync.Mutex
	counters map[string]uint64
}

// NewRoundRobinStore creates an empty round-robin store.
func NewRoundRobinStore() *RoundRobinStore {
	return &RoundRobinStore{
		counters: make(map[string]uint64),
	}
}

// Next returns the next index modulo n for the candidate set key and
// advances the counter.
func (s *RoundRobinStore) Next(key string, n int) int {
	if n <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.counters[key] % uint64(n)
	s.counters[key]++
	return int(idx)
}

// Reset clears all counters.
func (s *RoundRobinStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = make(map[string]uint64)
}
