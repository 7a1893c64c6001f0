// Package cache owns the multi-platform entity cache: refresh and
// expiry policy, type-bucket updates, and lifecycle hygiene. The
// Manager is the single writer of the persisted aggregate; all
// read-modify-write sequences are serialized behind its mutex, so two
// concurrent refreshes can never overwrite each other's platforms.
package cache

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ajitpratap0/threatlex/internal/cachestore"
	"github.com/ajitpratap0/threatlex/internal/metrics"
	"github.com/ajitpratap0/threatlex/internal/models"
)

const (
	// DefaultCacheDuration is how long a snapshot stays servable
	// before it is considered expired.
	DefaultCacheDuration = time.Hour

	// DefaultRefreshInterval is the softer staleness threshold that
	// should trigger a background re-fetch while the old snapshot is
	// still served.
	DefaultRefreshInterval = 30 * time.Minute
)

// Options tune the manager's staleness policy.
type Options struct {
	CacheDuration   time.Duration
	RefreshInterval time.Duration
}

// DefaultOptions returns the standard staleness thresholds.
func DefaultOptions() Options {
	return Options{
		CacheDuration:   DefaultCacheDuration,
		RefreshInterval: DefaultRefreshInterval,
	}
}

// Manager owns and mutates the persisted multi-platform cache.
type Manager struct {
	store  *cachestore.Store
	opts   Options
	logger *slog.Logger

	// mu serializes every read-modify-write of the aggregate.
	mu sync.Mutex

	// now is swappable for tests.
	now func() time.Time
}

// NewManager creates a manager over the given store.
func NewManager(store *cachestore.Store, opts Options, logger *slog.Logger) *Manager {
	if opts.CacheDuration <= 0 {
		opts.CacheDuration = DefaultCacheDuration
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	return &Manager{
		store:  store,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// Snapshot returns one platform's snapshot, or nil when absent.
func (m *Manager) Snapshot(ctx context.Context, platformID string) (*models.PlatformSnapshot, error) {
	return m.store.Load(ctx, platformID)
}

// All returns the whole aggregate for read-only consumers such as the
// name-index builder.
func (m *Manager) All(ctx context.Context) (*models.MultiPlatformCache, error) {
	return m.store.LoadAll(ctx)
}

// IsExpired reports whether the platform's snapshot is past the cache
// duration or absent. Expired data must not be served.
func (m *Manager) IsExpired(ctx context.Context, platformID string) bool {
	snap, err := m.store.Load(ctx, platformID)
	if err != nil || snap == nil {
		return true
	}
	return m.now().Sub(snap.Timestamp) > m.opts.CacheDuration
}

// ShouldRefresh reports whether the platform's snapshot is past the
// refresh interval or absent. Unlike expiry this is a soft signal:
// callers keep serving the old snapshot while re-fetching.
func (m *Manager) ShouldRefresh(ctx context.Context, platformID string) bool {
	snap, err := m.store.Load(ctx, platformID)
	if err != nil || snap == nil {
		return true
	}
	return m.now().Sub(snap.LastRefresh) > m.opts.RefreshInterval
}

// UpdateForType replaces one type bucket of the platform's snapshot,
// bumps lastRefresh, and persists the full updated snapshot. A missing
// snapshot is created with every bucket present. The returned
// SaveResult reports which rung of the degrade ladder the write
// landed on; persistence failure never surfaces as an error here.
func (m *Manager) UpdateForType(ctx context.Context, platformID string, kind models.PlatformKind, typeKey models.EntityTypeKey, entities []models.CachedEntity) cachestore.SaveResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	current, err := m.store.Load(ctx, platformID)
	if err != nil {
		m.logger.Error("loading snapshot for update", "platform", platformID, "error", err)
		current = nil
	}

	var snap *models.PlatformSnapshot
	if current == nil {
		snap = models.NewPlatformSnapshot(platformID, kind, now)
	} else {
		// Copy-on-write: readers may hold the loaded snapshot.
		snap = cloneSnapshotShallow(current)
	}

	bucket := make([]models.CachedEntity, 0, len(entities))
	seen := make(map[string]int, len(entities))
	for _, e := range entities {
		e.PlatformID = platformID
		e.Type = typeKey
		if i, dup := seen[e.ID]; dup {
			// Duplicate id replaces, never appends.
			bucket[i] = e
			continue
		}
		seen[e.ID] = len(bucket)
		bucket = append(bucket, e)
	}
	snap.Entities[typeKey] = bucket
	snap.LastRefresh = now

	result, err := m.store.Save(ctx, snap)
	if err != nil {
		// Best effort: log and continue with whatever state persisted.
		m.logger.Error("persisting snapshot", "platform", platformID, "type", typeKey, "error", err)
		return cachestore.SaveResult{State: cachestore.SaveDropped, Reason: err.Error()}
	}
	switch result.State {
	case cachestore.SaveDegraded:
		metrics.Inc(metrics.SaveDegraded)
	case cachestore.SaveDropped:
		metrics.Inc(metrics.SaveDropped)
	}
	return result
}

// CleanupOrphaned deletes any persisted snapshot whose platform id is
// not in the supplied list of currently configured platforms. Run
// after settings changes to bound storage growth.
func (m *Manager) CleanupOrphaned(ctx context.Context, validPlatformIDs []string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	valid := make(map[string]bool, len(validPlatformIDs))
	for _, id := range validPlatformIDs {
		valid[id] = true
	}

	agg, err := m.store.LoadAll(ctx)
	if err != nil {
		m.logger.Error("loading cache for orphan cleanup", "error", err)
		return 0
	}

	pruned := 0
	for id := range agg.Platforms {
		if valid[id] {
			continue
		}
		if err := m.store.Delete(ctx, id); err != nil {
			m.logger.Error("pruning orphaned snapshot", "platform", id, "error", err)
			continue
		}
		m.logger.Info("pruned orphaned snapshot", "platform", id)
		metrics.Inc(metrics.OrphansPruned)
		pruned++
	}
	return pruned
}

// ClearForPlatform removes one platform's snapshot.
func (m *Manager) ClearForPlatform(ctx context.Context, platformID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Delete(ctx, platformID)
}

// ClearAll removes every cached snapshot.
func (m *Manager) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Clear(ctx)
}

// Stats summarizes the cached data for one platform, or (nil, nil)
// when the platform has no snapshot.
func (m *Manager) Stats(ctx context.Context, platformID string) (*models.PlatformStats, error) {
	snap, err := m.store.Load(ctx, platformID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, nil
	}
	stats := m.platformStats(snap)
	return &stats, nil
}

// StatsAll summarizes every cached platform, ordered by platform id.
func (m *Manager) StatsAll(ctx context.Context) (*models.CacheStats, error) {
	agg, err := m.store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := &models.CacheStats{PlatformCount: len(agg.Platforms)}
	for _, snap := range agg.Platforms {
		ps := m.platformStats(snap)
		out.Total += ps.Total
		out.Platforms = append(out.Platforms, ps)
	}
	sort.Slice(out.Platforms, func(i, j int) bool {
		return out.Platforms[i].PlatformID < out.Platforms[j].PlatformID
	})
	return out, nil
}

func (m *Manager) platformStats(snap *models.PlatformSnapshot) models.PlatformStats {
	now := m.now()
	ps := models.PlatformStats{
		PlatformID: snap.PlatformID,
		ByType:     make(map[models.EntityTypeKey]int, len(snap.Entities)),
		AgeSeconds: snap.Age(now).Seconds(),
		IsExpired:  now.Sub(snap.Timestamp) > m.opts.CacheDuration,
	}
	for key, bucket := range snap.Entities {
		ps.ByType[key] = len(bucket)
		ps.Total += len(bucket)
	}
	return ps
}

// cloneSnapshotShallow copies the snapshot struct and its bucket map;
// bucket slices are shared until replaced.
func cloneSnapshotShallow(snap *models.PlatformSnapshot) *models.PlatformSnapshot {
	out := &models.PlatformSnapshot{
		PlatformID:  snap.PlatformID,
		Kind:        snap.Kind,
		Timestamp:   snap.Timestamp,
		LastRefresh: snap.LastRefresh,
		Entities:    make(map[models.EntityTypeKey][]models.CachedEntity, len(snap.Entities)),
	}
	for key, bucket := range snap.Entities {
		out.Entities[key] = bucket
	}
	return out
}
