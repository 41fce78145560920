package modloader

import (
	"sort"
	"sync"
	"time"
)

// LoadedModuleRecord holds a live module instance. The store owns the
// instance once the record is created.
type LoadedModuleRecord struct {
	Name         string
	Instance     any
	LoadedAt     time.Time
	LoadDuration time.Duration
}

type moduleStore struct {
	mu      sync.RWMutex
	records map[string]*LoadedModuleRecord
}

func newModuleStore() *moduleStore {
	return &moduleStore{records: make(map[string]*LoadedModuleRecord)}
}

func (s *moduleStore) get(name string) (*LoadedModuleRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[name]
	return rec, ok
}

func (s *moduleStore) put(rec *LoadedModuleRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Name] = rec
}

func (s *moduleStore) names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.records))
	for name := range s.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *moduleStore) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// drain empties the store and returns what it held.
func (s *moduleStore) drain() []*LoadedModuleRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*LoadedModuleRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	s.records = make(map[string]*LoadedModuleRecord)
	return out
}
