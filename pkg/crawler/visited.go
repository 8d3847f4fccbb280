package crawler

import (
	"context"
	"sync"
)

// MemoryVisitedSet is the default process-local VisitedSet
type MemoryVisitedSet struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

func NewMemoryVisitedSet() *MemoryVisitedSet {
	return &MemoryVisitedSet{urls: make(map[string]struct{})}
}

func (s *MemoryVisitedSet) Add(_ context.Context, url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.urls[url]; ok {
		return false, nil
	}
	s.urls[url] = struct{}{}
	return true, nil
}

func (s *MemoryVisitedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.urls)
}
