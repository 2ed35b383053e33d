package tasks

import (
	"context"
	"sync"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/entities"
)

// MemoryStore keeps every record for the life of the process.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]entities.TaskRecord
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]entities.TaskRecord)}
}

// Save stores a copy of rec.
func (s *MemoryStore) Save(ctx context.Context, rec entities.TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

// Get returns a copy of the record with id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*entities.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return &rec, nil
}

// Len returns the number of records held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
