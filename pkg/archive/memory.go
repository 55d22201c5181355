package archive

import (
	"context"
	"sync"
	"time"

	"github.com/imoran/clade/pkg/errors"
)

// MemoryStore keeps archived cycles in process memory. Useful for tests and
// single-run setups where persistence is not needed.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	order   []string
}

// NewMemoryStore creates an empty in-memory archive.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Save(ctx context.Context, record Record) error {
	if record.CycleID == "" {
		return errors.New(errors.CodeValidation, "cycle id is required", nil)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.CycleID]; !ok {
		s.order = append(s.order, record.CycleID)
	}
	s.records[record.CycleID] = record
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, cycleID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[cycleID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "cycle not archived", nil).
			WithContext("cycle_id", cycleID)
	}
	out := record
	return &out, nil
}

// List returns records newest first. limit <= 0 returns all.
func (s *MemoryStore) List(ctx context.Context, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		record := s.records[s.order[i]]
		out = append(out, &record)
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
