package rollout

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store with the same compare-and-swap
// semantics as the durable backends. It backs tests and the single-shot
// CLI commands that do not need persistence across runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

// Save inserts or CAS-updates a record. Records are stored as JSON so
// callers never share memory with the store.
func (s *MemoryStore) Save(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.records[rec.RolloutID]
	switch {
	case rec.Revision == 0:
		if exists {
			return fmt.Errorf("insert rollout %s: %w", rec.RolloutID, ErrRevisionConflict)
		}
		rec.Revision = 1
	default:
		if !exists {
			return fmt.Errorf("update rollout %s: %w", rec.RolloutID, ErrRecordNotFound)
		}
		var current Record
		if err := json.Unmarshal(stored, &current); err != nil {
			return fmt.Errorf("decode stored rollout %s: %w", rec.RolloutID, err)
		}
		if current.Revision != rec.Revision {
			return fmt.Errorf("save rollout %s at revision %d, stored %d: %w",
				rec.RolloutID, rec.Revision, current.Revision, ErrRevisionConflict)
		}
		rec.Revision++
	}

	data, err := json.Marshal(rec)
	if err != nil {
		rec.Revision--
		return fmt.Errorf("encode rollout %s: %w", rec.RolloutID, err)
	}
	s.records[rec.RolloutID] = data
	return nil
}

// Get returns a private copy of the record.
func (s *MemoryStore) Get(_ context.Context, rolloutID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.records[rolloutID]
	if !ok {
		return nil, fmt.Errorf("rollout %s: %w", rolloutID, ErrRecordNotFound)
	}
	return decodeRecord(data)
}

// Active returns the single non-terminal record.
func (s *MemoryStore) Active(_ context.Context) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var active *Record
	for _, data := range s.records {
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		if !rec.State.Active() {
			continue
		}
		if active == nil || rec.UpdatedAt.After(active.UpdatedAt) {
			active = rec
		}
	}
	if active == nil {
		return nil, ErrRecordNotFound
	}
	return active, nil
}

// List returns records newest-first. A non-positive limit returns all.
func (s *MemoryStore) List(_ context.Context, limit int) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]*Record, 0, len(s.records))
	for _, data := range s.records {
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].RolloutID < records[j].RolloutID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func decodeRecord(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode stored rollout: %w", err)
	}
	rec.Normalize()
	return &rec, nil
}
