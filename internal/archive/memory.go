package archive

import (
	"context"
	"fmt"
	"sync"

	"github.com/dusk-indust/adqueue/internal/request"
)

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps records in memory. Records are kept in a map keyed by
// build id with a separate slice maintaining save order.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*BuildRecord
	order   []string
	// byRequest maps an archived request id to its build id.
	byRequest map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:   make(map[string]*BuildRecord),
		order:     make([]string, 0),
		byRequest: make(map[string]string),
	}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, rec *BuildRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("archive: build %q already exists", rec.ID)
	}
	s.records[rec.ID] = rec.Clone()
	s.order = append(s.order, rec.ID)
	for _, r := range rec.Requests {
		s.byRequest[r.ID] = rec.ID
	}
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*BuildRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, recordNotFound(id)
	}
	return rec.Clone(), nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context) ([]*BuildRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*BuildRecord, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.records[s.order[i]].Clone())
	}
	return out, nil
}

// Latest implements Store.
func (s *MemoryStore) Latest(_ context.Context) (*BuildRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.order) == 0 {
		return nil, nil
	}
	return s.records[s.order[len(s.order)-1]].Clone(), nil
}

// FindRequest implements Store.
func (s *MemoryStore) FindRequest(_ context.Context, requestID string) (*request.ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.lookup(requestID)
	if !ok {
		return nil, requestNotFound(requestID)
	}
	return r.Clone(), nil
}

// SetQA implements Store.
func (s *MemoryStore) SetQA(_ context.Context, requestID string, fn func(request.QAStatus) request.QAStatus) (*request.ChangeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.lookup(requestID)
	if !ok {
		return nil, requestNotFound(requestID)
	}
	r.QA = fn(r.QA)
	return r.Clone(), nil
}

// lookup must be called with s.mu held.
func (s *MemoryStore) lookup(requestID string) (*request.ChangeRequest, bool) {
	buildID, ok := s.byRequest[requestID]
	if !ok {
		return nil, false
	}
	return s.records[buildID].Request(requestID)
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
