package cachestore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/threatlex/internal/kvstore"
	"github.com/ajitpratap0/threatlex/internal/models"
)

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// warnCounter counts Warn-level records.
type warnCounter struct {
	mu    sync.Mutex
	warns int
}

func (w *warnCounter) Enabled(_ context.Context, level slog.Level) bool { return true }

func (w *warnCounter) Handle(_ context.Context, r slog.Record) error {
	if r.Level == slog.LevelWarn {
		w.mu.Lock()
		w.warns++
		w.mu.Unlock()
	}
	return nil
}

func (w *warnCounter) WithAttrs([]slog.Attr) slog.Handler { return w }
func (w *warnCounter) WithGroup(string) slog.Handler      { return w }

func (w *warnCounter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.warns
}

// cappedKV fails Set with a quota error whenever the value exceeds
// maxValueBytes, simulating platform-imposed storage pressure.
type cappedKV struct {
	kvstore.KV
	maxValueBytes int
}

func (c *cappedKV) Set(ctx context.Context, key string, value []byte) error {
	if c.maxValueBytes > 0 && len(value) > c.maxValueBytes {
		return kvstore.ErrQuotaExceeded
	}
	return c.KV.Set(ctx, key, value)
}

func entityFixture(id int) models.CachedEntity {
	return models.CachedEntity{
		ID:   fmt.Sprintf("ent-%d", id),
		Name: fmt.Sprintf("Entity %d", id),
	}
}

func snapshotFixture(platformID string, n int) *models.PlatformSnapshot {
	snap := models.NewPlatformSnapshot(platformID, models.KindThreatIntel, time.Now().UTC())
	for i := 0; i < n; i++ {
		snap.Entities[models.TypeMalware] = append(snap.Entities[models.TypeMalware], entityFixture(i))
	}
	return snap
}

func TestSave_TrimOnWrite(t *testing.T) {
	kv := kvstore.NewMemoryKV(0)
	caps := DefaultCaps()
	caps.ThreatIntel = 50
	store := New(kv, caps, nopLogger())
	ctx := context.Background()

	result, err := store.Save(ctx, snapshotFixture("p1", 60))
	require.NoError(t, err)
	assert.Equal(t, SaveOK, result.State)

	loaded, err := store.Load(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	bucket := loaded.Entities[models.TypeMalware]
	require.Len(t, bucket, 50)
	// The most recently appended entities survive the trim.
	assert.Equal(t, "ent-10", bucket[0].ID)
	assert.Equal(t, "ent-59", bucket[49].ID)
}

func TestSave_EveryBucketStillPresentAfterTrim(t *testing.T) {
	store := New(kvstore.NewMemoryKV(0), DefaultCaps(), nopLogger())
	ctx := context.Background()

	_, err := store.Save(ctx, snapshotFixture("p1", 3))
	require.NoError(t, err)

	loaded, err := store.Load(ctx, "p1")
	require.NoError(t, err)
	for _, key := range models.KindThreatIntel.TypeKeys() {
		assert.NotNil(t, loaded.Entities[key], "bucket %s missing", key)
	}
}

func TestSave_DegradesToMinimalSnapshot(t *testing.T) {
	inner := kvstore.NewMemoryKV(0)
	store := New(inner, Caps{ThreatIntel: 100, Simulation: 100, Minimal: 5, MinimalAliases: 2}, nopLogger())
	ctx := context.Background()

	snap := snapshotFixture("p1", 20)
	for i := range snap.Entities[models.TypeMalware] {
		snap.Entities[models.TypeMalware][i].Aliases = []string{"one", "two", "three", "four"}
	}

	// Find the full payload size, then cap just below it so the full
	// write fails and the minimal write fits.
	full, err := store.Save(ctx, snap)
	require.NoError(t, err)
	require.Equal(t, SaveOK, full.State)
	raw, err := inner.Get(ctx, aggregateKey)
	require.NoError(t, err)

	capped := &cappedKV{KV: kvstore.NewMemoryKV(0), maxValueBytes: len(raw) - 1}
	store = New(capped, Caps{ThreatIntel: 100, Simulation: 100, Minimal: 5, MinimalAliases: 2}, nopLogger())

	result, err := store.Save(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, SaveDegraded, result.State)
	assert.NotEmpty(t, result.Reason)

	loaded, err := store.Load(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	bucket := loaded.Entities[models.TypeMalware]
	require.Len(t, bucket, 5)
	for _, e := range bucket {
		assert.LessOrEqual(t, len(e.Aliases), 2)
	}
}

func TestSave_DropsPlatformWhenMinimalStillFails(t *testing.T) {
	counter := &warnCounter{}
	logger := slog.New(counter)

	// Seed another platform under a permissive store first.
	inner := kvstore.NewMemoryKV(0)
	seed := New(inner, DefaultCaps(), logger)
	ctx := context.Background()
	_, err := seed.Save(ctx, snapshotFixture("other", 1))
	require.NoError(t, err)
	otherUsage, err := inner.BytesInUse(ctx)
	require.NoError(t, err)

	// Any write bigger than the seeded aggregate fails: the victim's
	// full and minimal snapshots both trip the quota, the dropped
	// aggregate (other platform only) fits.
	capped := &cappedKV{KV: inner, maxValueBytes: int(otherUsage)}
	store := New(capped, DefaultCaps(), logger)

	result, err := store.Save(ctx, snapshotFixture("victim", 1000))
	require.NoError(t, err)
	assert.Equal(t, SaveDropped, result.State)
	assert.NotEmpty(t, result.Reason)

	// The victim is absent; the other platform's entry is intact.
	agg, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.NotContains(t, agg.Platforms, "victim")
	assert.Contains(t, agg.Platforms, "other")
}

func TestSave_QuotaWarnsOnlyOnce(t *testing.T) {
	counter := &warnCounter{}
	logger := slog.New(counter)

	capped := &cappedKV{KV: kvstore.NewMemoryKV(0), maxValueBytes: 10}
	store := New(capped, DefaultCaps(), logger)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := store.Save(ctx, snapshotFixture("p1", 100))
		require.NoError(t, err)
		assert.Equal(t, SaveDropped, result.State)
	}
	assert.Equal(t, 1, counter.count())
}

func TestLoad_AbsentIsNotAnError(t *testing.T) {
	store := New(kvstore.NewMemoryKV(0), DefaultCaps(), nopLogger())

	snap, err := store.Load(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSave_PreservesOtherPlatforms(t *testing.T) {
	store := New(kvstore.NewMemoryKV(0), DefaultCaps(), nopLogger())
	ctx := context.Background()

	_, err := store.Save(ctx, snapshotFixture("p1", 2))
	require.NoError(t, err)
	_, err = store.Save(ctx, snapshotFixture("p2", 3))
	require.NoError(t, err)

	agg, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, agg.Platforms, 2)
	assert.Len(t, agg.Platforms["p1"].Entities[models.TypeMalware], 2)
	assert.Len(t, agg.Platforms["p2"].Entities[models.TypeMalware], 3)
}

func TestDelete_RemovesOnlyThatPlatform(t *testing.T) {
	store := New(kvstore.NewMemoryKV(0), DefaultCaps(), nopLogger())
	ctx := context.Background()

	_, err := store.Save(ctx, snapshotFixture("p1", 1))
	require.NoError(t, err)
	_, err = store.Save(ctx, snapshotFixture("p2", 1))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "p1"))

	agg, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.NotContains(t, agg.Platforms, "p1")
	assert.Contains(t, agg.Platforms, "p2")

	// Deleting an absent platform is a no-op.
	assert.NoError(t, store.Delete(ctx, "p1"))
}

func TestClear_RemovesEverything(t *testing.T) {
	store := New(kvstore.NewMemoryKV(0), DefaultCaps(), nopLogger())
	ctx := context.Background()

	_, err := store.Save(ctx, snapshotFixture("p1", 1))
	require.NoError(t, err)
	require.NoError(t, store.Clear(ctx))

	agg, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, agg.Platforms)
}

func TestLoadAll_CorruptBlobTreatedAsAbsent(t *testing.T) {
	kv := kvstore.NewMemoryKV(0)
	require.NoError(t, kv.Set(context.Background(), "multi_platform_cache", []byte("{not json")))

	store := New(kv, DefaultCaps(), nopLogger())
	agg, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, agg.Platforms)
}
