package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratops/stratroll/internal/rollout"
)

const testKey = "stratroll:rollout:status"

func canaryRecord() *rollout.Record {
	return &rollout.Record{
		RolloutID:        "ro-0042",
		State:            rollout.StateLiveCanary15,
		CurrentPhase:     "canary15",
		Weights:          rollout.Weights{BaselinePct: 85, CandidatePct: 15},
		Routing:          rollout.RoutingFor(rollout.StateLiveCanary15),
		BaselineVersion:  rollout.VersionSnapshot{StrategyID: "momo-v3"},
		CandidateVersion: rollout.VersionSnapshot{StrategyID: "momo-v4"},
		UpdatedAt:        time.Date(2025, 11, 5, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublishStatus_WritesCompactDoc(t *testing.T) {
	client, mock := redismock.NewClientMock()
	m := NewWithClient(client, testKey, 5*time.Minute)

	rec := canaryRecord()
	payload, err := json.Marshal(DocFromRecord(rec))
	require.NoError(t, err)

	mock.ExpectSet(testKey, payload, 5*time.Minute).SetVal("OK")

	require.NoError(t, m.PublishStatus(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishStatus_WrapsRedisError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	m := NewWithClient(client, testKey, time.Minute)

	mock.Regexp().ExpectSet(testKey, `.*`, time.Minute).SetErr(errors.New("connection reset"))

	err := m.PublishStatus(context.Background(), canaryRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mirror status for rollout ro-0042")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPublishStatus_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	client, mock := redismock.NewClientMock()
	m := NewWithClient(client, testKey, time.Minute)

	for i := 0; i < 3; i++ {
		mock.Regexp().ExpectSet(testKey, `.*`, time.Minute).SetErr(errors.New("down"))
	}

	rec := canaryRecord()
	for i := 0; i < 3; i++ {
		require.Error(t, m.PublishStatus(context.Background(), rec))
	}

	// Fourth call fails fast without touching Redis; no expectation is
	// registered for it and none is consumed.
	err := m.PublishStatus(context.Background(), rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetch_RoundTrip(t *testing.T) {
	client, mock := redismock.NewClientMock()
	m := NewWithClient(client, testKey, time.Minute)

	doc := DocFromRecord(canaryRecord())
	payload, err := json.Marshal(doc)
	require.NoError(t, err)
	mock.ExpectGet(testKey).SetVal(string(payload))

	got, err := m.Fetch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ro-0042", got.RolloutID)
	assert.Equal(t, rollout.StateLiveCanary15, got.State)
	assert.Equal(t, 15, got.CandidatePct)
	assert.Equal(t, "momo-v4", got.Candidate)
}

func TestFetch_MissingKeyIsNotAnError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	m := NewWithClient(client, testKey, time.Minute)

	mock.ExpectGet(testKey).RedisNil()

	got, err := m.Fetch(context.Background())
	require.NoError(t, err, "expired mirror key is a cache miss, not a failure")
	assert.Nil(t, got)
}

func TestFetch_CorruptPayload(t *testing.T) {
	client, mock := redismock.NewClientMock()
	m := NewWithClient(client, testKey, time.Minute)

	mock.ExpectGet(testKey).SetVal("{half a doc")

	_, err := m.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode mirrored status")
}

func TestDocFromRecord_ProjectsRoutingFields(t *testing.T) {
	rec := canaryRecord()
	rec.ApprovalTarget = rollout.StateLiveStable
	rec.AbortReason = ""

	doc := DocFromRecord(rec)

	assert.Equal(t, rec.RolloutID, doc.RolloutID)
	assert.Equal(t, "canary15", doc.Phase)
	assert.Equal(t, 85, doc.BaselinePct)
	assert.Equal(t, 15, doc.CandidatePct)
	assert.False(t, doc.ShadowOnly)
	assert.Equal(t, rollout.StateLiveStable, doc.PendingTarget)
	assert.Equal(t, rec.UpdatedAt, doc.UpdatedAt)
}
