// Package inmem is a content-addressed, in-process filestore.Store used by
// the CLI driver's default configuration and by tests.
package inmem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/deepresearch/agentrunner/internal/adapters/filestore"
)

// Store is an in-memory filestore.Store, keyed by a hash of filename+bytes
// so repeated uploads of identical content return the same file_id.
type Store struct {
	mu   sync.Mutex
	data map[string][]byte
}

// New constructs an empty Store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

var _ filestore.Store = (*Store)(nil)

// Upload implements filestore.Store.
func (s *Store) Upload(_ context.Context, filename string, data []byte) (string, error) {
	h := sha256.New()
	h.Write([]byte(filename))
	h.Write([]byte{0})
	h.Write(data)
	id := hex.EncodeToString(h.Sum(nil))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = append([]byte(nil), data...)
	return id, nil
}

// Download implements filestore.Store.
func (s *Store) Download(_ context.Context, fileID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[fileID]
	if !ok {
		return nil, fileNotFoundError(fileID)
	}
	return append([]byte(nil), data...), nil
}

type fileNotFoundError string

func (e fileNotFoundError) Error() string { return "inmem filestore: file not found: " + string(e) }
