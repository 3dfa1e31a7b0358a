package kpm

import (
	"sort"
	"sync"

	"github.com/j-veylop/kpm-aggregator/internal/models"
)

// Store maps project root keys to the aggregates of the current window.
// All access goes through the mutex, so a flush taking an entry can never
// interleave with an engine write to the same entry.
type Store struct {
	mu       sync.Mutex
	projects map[string]*models.ProjectAggregate
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		projects: make(map[string]*models.ProjectAggregate),
	}
}

// Update runs fn on the aggregate for root while holding the store lock.
// If no aggregate exists yet, create is called to build one.
func (s *Store) Update(root string, create func() *models.ProjectAggregate, fn func(*models.ProjectAggregate)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg, ok := s.projects[root]
	if !ok {
		agg = create()
		s.projects[root] = agg
	}
	fn(agg)
}

// Take removes the aggregate for root and hands ownership to the caller.
func (s *Store) Take(root string) *models.ProjectAggregate {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg, ok := s.projects[root]
	if !ok {
		return nil
	}
	delete(s.projects, root)
	return agg
}

// Keys returns the current root keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.projects))
	for k := range s.projects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of aggregates in the store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.projects)
}

// Get returns a copy of the aggregate for root.
func (s *Store) Get(root string) (*models.ProjectAggregate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg, ok := s.projects[root]
	if !ok {
		return nil, false
	}
	return agg.Clone(), true
}

// Snapshot returns copies of all aggregates ordered by directory.
func (s *Store) Snapshot() []*models.ProjectAggregate {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*models.ProjectAggregate, 0, len(s.projects))
	for _, agg := range s.projects {
		result = append(result, agg.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Directory < result[j].Directory
	})
	return result
}
