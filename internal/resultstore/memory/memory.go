// Package memory is the map-backed result store used by tests and
// single-process demos.
package memory

import (
	"context"
	"sync"
	"time"

	"anvil/internal/resultstore"
	"anvil/model"
)

type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.ResultRecord
}

func NewMemoryStore() resultstore.Store {
	return &MemoryStore{records: make(map[string]model.ResultRecord)}
}

func (s *MemoryStore) Put(ctx context.Context, rec model.ResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Ticket] = rec
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, ticket string) (model.ResultRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[ticket]
	if !ok {
		return model.ResultRecord{}, model.ErrUnknownTicket
	}
	return rec, nil
}

func (s *MemoryStore) Sweep(ctx context.Context, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-ttl)
	for ticket, rec := range s.records {
		if rec.Status == model.StatusRunning {
			continue
		}
		if rec.WrittenAt.Before(cutoff) {
			delete(s.records, ticket)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
