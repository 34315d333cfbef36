// Package mirror maintains a hot copy of the active rollout's status in
// Redis for dashboards and the trading engine's fast path. The durable
// store remains the source of truth; the mirror is a cache that must
// never block or fail a rollout operation, so writes go through a
// circuit breaker and errors are reported, not propagated as failures
// of the mutation that triggered them.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"

	"github.com/stratops/stratroll/internal/config"
	"github.com/stratops/stratroll/internal/rollout"
)

// StatusDoc is the compact snapshot written to Redis. It carries what a
// dashboard or routing fast path needs without shipping the full
// record.
type StatusDoc struct {
	RolloutID     string        `json:"rollout_id"`
	State         rollout.State `json:"state"`
	Phase         string        `json:"phase,omitempty"`
	Mode          string        `json:"mode"`
	ShadowOnly    bool          `json:"shadow_only"`
	BaselinePct   int           `json:"baseline_pct"`
	CandidatePct  int           `json:"candidate_pct"`
	Candidate     string        `json:"candidate"`
	Baseline      string        `json:"baseline"`
	PendingTarget rollout.State `json:"pending_target,omitempty"`
	AbortReason   string        `json:"abort_reason,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Mirror publishes StatusDocs to one Redis key with a TTL.
type Mirror struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	key     string
	ttl     time.Duration
}

// New connects to Redis and verifies the connection. The breaker opens
// after three consecutive failures and probes again after 30 seconds,
// so a dead Redis costs one fast-failing call per operation instead of
// a dial timeout each.
func New(cfg config.MirrorConfig) (*Mirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "rollout-status-mirror",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &Mirror{client: client, breaker: breaker, key: cfg.Key, ttl: cfg.TTL}, nil
}

// NewWithClient wires an existing client, for tests with redismock.
func NewWithClient(client *redis.Client, key string, ttl time.Duration) *Mirror {
	return &Mirror{
		client: client,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "rollout-status-mirror",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
		key: key,
		ttl: ttl,
	}
}

// PublishStatus writes the record's compact status under the configured
// key. Implements rollout.StatusMirror.
func (m *Mirror) PublishStatus(ctx context.Context, rec *rollout.Record) error {
	doc := DocFromRecord(rec)
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode status doc: %w", err)
	}
	_, err = m.breaker.Execute(func() (any, error) {
		return nil, m.client.Set(ctx, m.key, payload, m.ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("mirror status for rollout %s: %w", rec.RolloutID, err)
	}
	return nil
}

// Fetch reads the mirrored status back. A missing key returns
// (nil, nil): the mirror may have expired, which is not an error.
func (m *Mirror) Fetch(ctx context.Context) (*StatusDoc, error) {
	val, err := m.client.Get(ctx, m.key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch mirrored status: %w", err)
	}
	var doc StatusDoc
	if err := json.Unmarshal([]byte(val), &doc); err != nil {
		return nil, fmt.Errorf("decode mirrored status: %w", err)
	}
	return &doc, nil
}

// Close releases the Redis connection.
func (m *Mirror) Close() error {
	return m.client.Close()
}

// DocFromRecord projects a record onto the compact status shape.
func DocFromRecord(rec *rollout.Record) StatusDoc {
	return StatusDoc{
		RolloutID:     rec.RolloutID,
		State:         rec.State,
		Phase:         rec.CurrentPhase,
		Mode:          rec.Routing.Mode,
		ShadowOnly:    rec.Routing.ShadowOnly,
		BaselinePct:   rec.Weights.BaselinePct,
		CandidatePct:  rec.Weights.CandidatePct,
		Candidate:     rec.CandidateVersion.StrategyID,
		Baseline:      rec.BaselineVersion.StrategyID,
		PendingTarget: rec.ApprovalTarget,
		AbortReason:   rec.AbortReason,
		UpdatedAt:     rec.UpdatedAt,
	}
}
