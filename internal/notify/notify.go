// Package notify publishes rollout transition events to Kafka so risk
// dashboards and the execution layer learn about weight changes without
// polling the store. Events are keyed by rollout id, which keeps one
// rollout's transitions ordered within a partition.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/stratops/stratroll/internal/config"
	"github.com/stratops/stratroll/internal/rollout"
)

// TransitionEvent is the wire shape published per applied transition.
type TransitionEvent struct {
	Event        string        `json:"event"`
	RolloutID    string        `json:"rollout_id"`
	From         rollout.State `json:"from,omitempty"`
	To           rollout.State `json:"to,omitempty"`
	State        rollout.State `json:"state"`
	Phase        string        `json:"phase,omitempty"`
	Actor        string        `json:"actor,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	BaselinePct  int           `json:"baseline_pct"`
	CandidatePct int           `json:"candidate_pct"`
	Candidate    string        `json:"candidate"`
	TS           time.Time     `json:"ts"`
}

// Notifier writes transition events to one Kafka topic.
type Notifier struct {
	writer *kafka.Writer
	topic  string
}

// New builds a notifier over the configured brokers. The writer dials
// lazily; a broker that is down surfaces on the first publish, where
// the retry policy and the caller's best-effort handling take over.
func New(cfg config.NotifyConfig) *Notifier {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Notifier{writer: writer, topic: cfg.Topic}
}

// NotifyTransition publishes one event, retrying transient failures
// with exponential backoff. Implements rollout.TransitionNotifier.
func (n *Notifier) NotifyTransition(ctx context.Context, rec *rollout.Record, entry rollout.HistoryEntry) error {
	event := TransitionEvent{
		Event:        entry.Event,
		RolloutID:    rec.RolloutID,
		From:         entry.From,
		To:           entry.To,
		State:        rec.State,
		Phase:        rec.CurrentPhase,
		Actor:        entry.Actor,
		Reason:       entry.Reason,
		BaselinePct:  rec.Weights.BaselinePct,
		CandidatePct: rec.Weights.CandidatePct,
		Candidate:    rec.CandidateVersion.StrategyID,
		TS:           entry.TS,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode transition event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(rec.RolloutID),
		Value: payload,
		Time:  entry.TS,
	}
	publish := func() error {
		return n.writer.WriteMessages(ctx, msg)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(publish, policy); err != nil {
		return fmt.Errorf("publish transition event for rollout %s: %w", rec.RolloutID, err)
	}
	log.Debug().
		Str("rollout_id", rec.RolloutID).
		Str("event", event.Event).
		Str("topic", n.topic).
		Msg("transition event published")
	return nil
}

// Close flushes and closes the writer.
func (n *Notifier) Close() error {
	return n.writer.Close()
}
