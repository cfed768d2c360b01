package store

import (
	"context"
	"sync"

	"github.com/recomplejos/court-booking/internal/model"
)

// MemoryStore implements Store with an in-process map.  It backs the
// test suite and serves as a degraded single-instance fallback when
// Redis is unreachable at startup.  Records are copied on the way in
// and out so callers can never alias stored state.
type MemoryStore struct {
	mu   sync.Mutex
	recs map[string]model.ReservationRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]model.ReservationRecord)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*model.ReservationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := rec
	return &out, nil
}

func (s *MemoryStore) CreateIfAbsent(_ context.Context, key string, rec *model.ReservationRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[key]; ok {
		return false, nil
	}
	rec.Version = 1
	s.recs[key] = *rec
	return true, nil
}

func (s *MemoryStore) Update(_ context.Context, key string, rec *model.ReservationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.recs[key]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != rec.Version {
		return ErrVersionConflict
	}
	rec.Version++
	s.recs[key] = *rec
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.recs[key]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != version {
		return ErrVersionConflict
	}
	delete(s.recs, key)
	return nil
}

func (s *MemoryStore) ListAll(_ context.Context) (map[string]*model.ReservationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*model.ReservationRecord, len(s.recs))
	for k, rec := range s.recs {
		cp := rec
		out[k] = &cp
	}
	return out, nil
}

// MemoryIndex implements Index in-process with write-once semantics.
type MemoryIndex struct {
	mu   sync.Mutex
	refs map[string]SessionRef
}

// NewMemoryIndex returns an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{refs: make(map[string]SessionRef)}
}

func (i *MemoryIndex) Put(_ context.Context, sessionID string, ref SessionRef) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.refs[sessionID]; !ok {
		i.refs[sessionID] = ref
	}
	return nil
}

func (i *MemoryIndex) Resolve(_ context.Context, sessionID string) (*SessionRef, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	ref, ok := i.refs[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	out := ref
	return &out, nil
}
