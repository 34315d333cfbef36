package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratops/stratroll/internal/rollout"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "rollouts"))
	require.NoError(t, err)
	return store
}

func TestNewStore_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "rollouts")
	_, err := NewStore(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = NewStore("")
	require.Error(t, err)
}

func TestStore_SaveInsertsAndReloads(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := rollout.NewRecord("ro-1", time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC))
	require.NoError(t, store.Save(ctx, rec))
	assert.Equal(t, int64(1), rec.Revision)

	loaded, err := store.Get(ctx, "ro-1")
	require.NoError(t, err)
	assert.Equal(t, rec.RolloutID, loaded.RolloutID)
	assert.Equal(t, rollout.StateIdle, loaded.State)
	assert.Equal(t, int64(1), loaded.Revision)
	require.NotNil(t, loaded.History, "Normalize must rebuild the bounded buffers")
}

func TestStore_RevisionCAS(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := rollout.NewRecord("ro-1", time.Now().UTC())
	require.NoError(t, store.Save(ctx, rec))

	first, err := store.Get(ctx, "ro-1")
	require.NoError(t, err)
	second, err := store.Get(ctx, "ro-1")
	require.NoError(t, err)

	first.AbortReason = "first writer"
	require.NoError(t, store.Save(ctx, first))
	assert.Equal(t, int64(2), first.Revision)

	second.AbortReason = "second writer"
	err = store.Save(ctx, second)
	require.ErrorIs(t, err, rollout.ErrRevisionConflict)

	loaded, err := store.Get(ctx, "ro-1")
	require.NoError(t, err)
	assert.Equal(t, "first writer", loaded.AbortReason)
}

func TestStore_DuplicateInsertConflicts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, rollout.NewRecord("ro-1", time.Now().UTC())))
	err := store.Save(ctx, rollout.NewRecord("ro-1", time.Now().UTC()))
	require.ErrorIs(t, err, rollout.ErrRevisionConflict)
}

func TestStore_UpdateMissingFile(t *testing.T) {
	store := newTestStore(t)

	rec := rollout.NewRecord("ro-ghost", time.Now().UTC())
	rec.Revision = 2
	err := store.Save(context.Background(), rec)
	require.ErrorIs(t, err, rollout.ErrRecordNotFound)

	_, err = store.Get(context.Background(), "ro-ghost")
	require.ErrorIs(t, err, rollout.ErrRecordNotFound)
}

func TestStore_SurvivesProcessRestart(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "rollouts")
	ctx := context.Background()

	store, err := NewStore(dir)
	require.NoError(t, err)
	rec := rollout.NewRecord("ro-1", time.Now().UTC())
	rec.State = rollout.StatePaperSoak
	require.NoError(t, store.Save(ctx, rec))

	// A fresh store over the same directory sees the same records.
	reopened, err := NewStore(dir)
	require.NoError(t, err)
	active, err := reopened.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ro-1", active.RolloutID)
	assert.Equal(t, rollout.StatePaperSoak, active.State)
}

func TestStore_ActiveSkipsTerminalRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	done := rollout.NewRecord("ro-done", time.Now().UTC())
	done.State = rollout.StateCompleted
	require.NoError(t, store.Save(ctx, done))

	_, err := store.Active(ctx)
	require.ErrorIs(t, err, rollout.ErrRecordNotFound)
}

func TestStore_ListNewestFirstWithLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"ro-a", "ro-b", "ro-c"} {
		rec := rollout.NewRecord(id, base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, store.Save(ctx, rec))
	}

	records, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "ro-c", records[0].RolloutID)
	assert.Equal(t, "ro-b", records[1].RolloutID)
}

func TestStore_ListIgnoresForeignFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "rollouts")
	store, err := NewStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, rollout.NewRecord("ro-1", time.Now().UTC())))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("notes"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "archive"), 0755))

	records, err := store.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
