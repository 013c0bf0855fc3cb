// Package inmem is a process-local session.Store backing the CLI driver's
// default configuration and tests. Grounded on the teacher's
// features/session/mongo/clients/mongo/inmem adapter shape (a mutex-guarded
// map standing in for the Mongo-backed client of the same interface).
package inmem

import (
	"context"
	"sync"

	"github.com/deepresearch/agentrunner/internal/adapters/session"
)

// Store is an in-memory session.Store.
type Store struct {
	mu      sync.Mutex
	records map[string]session.Record
}

// New constructs an empty Store.
func New() *Store {
	return &Store{records: make(map[string]session.Record)}
}

// Upsert implements session.Store.
func (s *Store) Upsert(_ context.Context, r session.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, r.ResearchID)
	s.records[r.ResearchID] = r
	return nil
}

// Load implements session.Store.
func (s *Store) Load(_ context.Context, researchID string) (session.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[researchID]
	if !ok {
		return session.Record{}, session.ErrNotFound
	}
	return r, nil
}

// DeleteByQuery implements session.Store.
func (s *Store) DeleteByQuery(_ context.Context, match func(session.Record) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.records {
		if match(r) {
			delete(s.records, id)
		}
	}
	return nil
}
