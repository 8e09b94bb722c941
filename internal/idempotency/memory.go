package idempotency

import (
	"context"
	"sync"
)

type memoryRecord struct {
	requestHash string
	completed   bool
	result      []byte
}

// MemoryStore is a mutex-guarded store for unit tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryRecord
}

// NewMemoryStore creates an empty in-memory idempotency store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]memoryRecord)}
}

// ClaimOrLoad claims the key for the caller or classifies the existing
// record, all under one lock so concurrent callers serialize here.
func (s *MemoryStore) ClaimOrLoad(_ context.Context, key, requestHash string) (Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[key]
	if !exists {
		s.records[key] = memoryRecord{requestHash: requestHash}
		return Claim{State: StateClaimed}, nil
	}
	if rec.requestHash != requestHash {
		return Claim{State: StateConflict}, nil
	}
	if rec.completed {
		return Claim{State: StateCompleted, Result: rec.result}, nil
	}
	return Claim{State: StateInProgress}, nil
}

// Complete stores the result under the claimed key.
func (s *MemoryStore) Complete(_ context.Context, key, requestHash string, result []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = memoryRecord{requestHash: requestHash, completed: true, result: result}
	return nil
}

// Fail releases an in-flight claim so the command can be retried.
func (s *MemoryStore) Fail(_ context.Context, key, requestHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, exists := s.records[key]
	if exists && !rec.completed && rec.requestHash == requestHash {
		delete(s.records, key)
	}
	return nil
}
