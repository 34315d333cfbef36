// Package postgres stores rollout records in PostgreSQL. One row per
// rollout, the full record as JSONB, and a revision column that carries
// the compare-and-swap contract. A partial unique index keeps at most
// one rollout active at a time at the database level.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/stratops/stratroll/internal/config"
	"github.com/stratops/stratroll/internal/rollout"
)

const schema = `
CREATE TABLE IF NOT EXISTS rollouts (
	rollout_id TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	active     BOOLEAN NOT NULL,
	record     JSONB NOT NULL,
	revision   BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS rollouts_single_active ON rollouts (active) WHERE active;
CREATE INDEX IF NOT EXISTS rollouts_created_at ON rollouts (created_at DESC);`

// Open connects with the configured pool settings and verifies the
// connection with a ping.
func Open(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required when enabled")
	}
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Store implements rollout.Store over PostgreSQL.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewStore creates a rollout store. A non-positive timeout falls back
// to 10s per query.
func NewStore(db *sqlx.DB, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Store{db: db, timeout: timeout}
}

// EnsureSchema creates the rollouts table and indexes when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure rollouts schema: %w", err)
	}
	return nil
}

// Save inserts a new record (zero revision) or CAS-updates an existing
// one. The new revision is written back onto rec on success.
func (s *Store) Save(ctx context.Context, rec *rollout.Record) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if rec.Revision == 0 {
		return s.insert(ctx, rec)
	}
	return s.update(ctx, rec)
}

func (s *Store) insert(ctx context.Context, rec *rollout.Record) error {
	rec.Revision = 1
	data, err := json.Marshal(rec)
	if err != nil {
		rec.Revision = 0
		return fmt.Errorf("marshal rollout record: %w", err)
	}

	query := `
		INSERT INTO rollouts (rollout_id, state, active, record, revision, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = s.db.ExecContext(ctx, query,
		rec.RolloutID, string(rec.State), rec.State.Active(), data, rec.Revision, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		rec.Revision = 0
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			if pqErr.Constraint == "rollouts_single_active" {
				return fmt.Errorf("another rollout is active: %w", rollout.ErrRolloutActive)
			}
			return fmt.Errorf("rollout %s already exists: %w", rec.RolloutID, rollout.ErrRevisionConflict)
		}
		return fmt.Errorf("insert rollout %s: %w", rec.RolloutID, err)
	}
	return nil
}

func (s *Store) update(ctx context.Context, rec *rollout.Record) error {
	expected := rec.Revision
	rec.Revision = expected + 1
	data, err := json.Marshal(rec)
	if err != nil {
		rec.Revision = expected
		return fmt.Errorf("marshal rollout record: %w", err)
	}

	query := `
		UPDATE rollouts
		SET state = $1, active = $2, record = $3, revision = $4, updated_at = $5
		WHERE rollout_id = $6 AND revision = $7`
	res, err := s.db.ExecContext(ctx, query,
		string(rec.State), rec.State.Active(), data, rec.Revision, rec.UpdatedAt, rec.RolloutID, expected)
	if err != nil {
		rec.Revision = expected
		return fmt.Errorf("update rollout %s: %w", rec.RolloutID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		rec.Revision = expected
		return fmt.Errorf("update rollout %s: %w", rec.RolloutID, err)
	}
	if affected == 0 {
		rec.Revision = expected
		var exists bool
		if err := s.db.QueryRowxContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM rollouts WHERE rollout_id = $1)`, rec.RolloutID).Scan(&exists); err != nil {
			return fmt.Errorf("check rollout %s: %w", rec.RolloutID, err)
		}
		if !exists {
			return fmt.Errorf("rollout %s: %w", rec.RolloutID, rollout.ErrRecordNotFound)
		}
		return fmt.Errorf("rollout %s at revision %d: %w", rec.RolloutID, expected, rollout.ErrRevisionConflict)
	}
	return nil
}

// Get loads one record by id.
func (s *Store) Get(ctx context.Context, rolloutID string) (*rollout.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	row := s.db.QueryRowxContext(ctx,
		`SELECT record, revision FROM rollouts WHERE rollout_id = $1`, rolloutID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("rollout %s: %w", rolloutID, rollout.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("get rollout %s: %w", rolloutID, err)
	}
	return rec, nil
}

// Active loads the single non-terminal record.
func (s *Store) Active(ctx context.Context) (*rollout.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	row := s.db.QueryRowxContext(ctx,
		`SELECT record, revision FROM rollouts WHERE active LIMIT 1`)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, rollout.ErrRecordNotFound
		}
		return nil, fmt.Errorf("get active rollout: %w", err)
	}
	return rec, nil
}

// List returns records newest-first. A non-positive limit returns up to
// 100 records.
func (s *Store) List(ctx context.Context, limit int) ([]*rollout.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryxContext(ctx,
		`SELECT record, revision FROM rollouts ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list rollouts: %w", err)
	}
	defer rows.Close()

	var records []*rollout.Record
	for rows.Next() {
		var data []byte
		var revision int64
		if err := rows.Scan(&data, &revision); err != nil {
			return nil, fmt.Errorf("scan rollout row: %w", err)
		}
		rec, err := decodeRecord(data, revision)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rollout rows: %w", err)
	}
	return records, nil
}

func scanRecord(row *sqlx.Row) (*rollout.Record, error) {
	var data []byte
	var revision int64
	if err := row.Scan(&data, &revision); err != nil {
		return nil, err
	}
	return decodeRecord(data, revision)
}

// decodeRecord trusts the revision column over the JSON payload; the
// column is what the CAS predicate matched.
func decodeRecord(data []byte, revision int64) (*rollout.Record, error) {
	var rec rollout.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal rollout record: %w", err)
	}
	rec.Revision = revision
	rec.Normalize()
	return &rec, nil
}
