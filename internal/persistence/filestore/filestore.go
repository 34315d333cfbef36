// Package filestore stores rollout records as one JSON file per
// rollout under a single directory. It is the default local backend:
// durable across process restarts with no database to run. Writes are
// atomic (temp file + rename) and carry the same revision
// compare-and-swap contract as the PostgreSQL store.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	fsio "github.com/stratops/stratroll/internal/io"
	"github.com/stratops/stratroll/internal/rollout"
)

// Store implements rollout.Store on the local filesystem.
type Store struct {
	mu  sync.Mutex
	dir string
}

// NewStore creates the directory when missing and returns the store.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("filestore requires a directory")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create filestore dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(rolloutID string) string {
	return filepath.Join(s.dir, rolloutID+".json")
}

// Save inserts or CAS-updates one record file.
func (s *Store) Save(_ context.Context, rec *rollout.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(rec.RolloutID)
	current, err := s.read(path)
	switch {
	case rec.Revision == 0:
		if err == nil {
			return fmt.Errorf("insert rollout %s: %w", rec.RolloutID, rollout.ErrRevisionConflict)
		}
		if !os.IsNotExist(err) {
			return err
		}
		rec.Revision = 1
	default:
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("rollout %s: %w", rec.RolloutID, rollout.ErrRecordNotFound)
			}
			return err
		}
		if current.Revision != rec.Revision {
			return fmt.Errorf("save rollout %s at revision %d, stored %d: %w",
				rec.RolloutID, rec.Revision, current.Revision, rollout.ErrRevisionConflict)
		}
		rec.Revision++
	}

	if err := fsio.WriteJSONAtomic(path, rec); err != nil {
		rec.Revision--
		return fmt.Errorf("write rollout %s: %w", rec.RolloutID, err)
	}
	return nil
}

// Get loads one record by id.
func (s *Store) Get(_ context.Context, rolloutID string) (*rollout.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read(s.path(rolloutID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("rollout %s: %w", rolloutID, rollout.ErrRecordNotFound)
		}
		return nil, err
	}
	return rec, nil
}

// Active scans the directory for the single non-terminal record.
func (s *Store) Active(ctx context.Context) (*rollout.Record, error) {
	records, err := s.List(ctx, 0)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.State.Active() {
			return rec, nil
		}
	}
	return nil, rollout.ErrRecordNotFound
}

// List returns records newest-first. A non-positive limit returns all.
func (s *Store) List(_ context.Context, limit int) ([]*rollout.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read filestore dir %s: %w", s.dir, err)
	}
	var records []*rollout.Record
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		rec, err := s.read(filepath.Join(s.dir, name))
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

func (s *Store) read(path string) (*rollout.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec rollout.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record file %s: %w", path, err)
	}
	rec.Normalize()
	return &rec, nil
}
