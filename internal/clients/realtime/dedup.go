package realtime

import "sync"

// seenSet remembers the most recent event ids in a fixed-size ring.
type seenSet struct {
	mu    sync.Mutex
	ring  []string
	next  int
	index map[string]struct{}
}

func newSeenSet(size int) *seenSet {
	if size <= 0 {
		size = 1024
	}
	return &seenSet{ring: make([]string, size), index: make(map[string]struct{}, size)}
}

// Add records id and reports whether it was new.
func (s *seenSet) Add(id string) bool {
	if id == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[id]; ok {
		return false
	}
	if old := s.ring[s.next]; old != "" {
		delete(s.index, old)
	}
	s.ring[s.next] = id
	s.index[id] = struct{}{}
	s.next = (s.next + 1) % len(s.ring)
	return true
}

func (s *seenSet) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.ring {
		s.ring[i] = ""
	}
	s.next = 0
	s.index = make(map[string]struct{}, len(s.ring))
}
