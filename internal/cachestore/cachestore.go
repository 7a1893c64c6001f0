// Package cachestore persists the multi-platform entity cache as a
// single serialized aggregate record in the key-value store, surviving
// quota pressure through an ordered fallback ladder: full snapshot,
// then a minimal snapshot, then dropping the platform's entry.
package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ajitpratap0/threatlex/internal/kvstore"
	"github.com/ajitpratap0/threatlex/internal/models"
)

// aggregateKey is the single KV record holding the whole aggregate.
const aggregateKey = "multi_platform_cache"

// Caps bounds how many entities a type bucket may hold when written.
type Caps struct {
	// ThreatIntel and Simulation cap full-snapshot buckets per kind.
	ThreatIntel int
	Simulation  int
	// Minimal caps buckets of the degraded snapshot.
	Minimal int
	// MinimalAliases is how many aliases a degraded entity keeps.
	MinimalAliases int
}

// DefaultCaps returns the standard trim limits.
func DefaultCaps() Caps {
	return Caps{
		ThreatIntel:    50000,
		Simulation:     20000,
		Minimal:        10000,
		MinimalAliases: 3,
	}
}

func (c Caps) forKind(kind models.PlatformKind) int {
	if kind == models.KindSimulation {
		return c.Simulation
	}
	return c.ThreatIntel
}

// SaveState is the outcome class of a Save call.
type SaveState int

const (
	// SaveOK means the full (trimmed) snapshot was persisted.
	SaveOK SaveState = iota
	// SaveDegraded means only the minimal snapshot was persisted.
	SaveDegraded
	// SaveDropped means the platform's entry was removed from the
	// persisted aggregate because even the minimal snapshot did not
	// fit.
	SaveDropped
)

// String returns the lowercase name of the state.
func (s SaveState) String() string {
	switch s {
	case SaveOK:
		return "ok"
	case SaveDegraded:
		return "degraded"
	case SaveDropped:
		return "dropped"
	}
	return "unknown"
}

// SaveResult reports how a Save call landed. Reason is empty for
// SaveOK.
type SaveResult struct {
	State  SaveState
	Reason string
}

// Store persists platform snapshots inside the aggregate blob.
// Writers must serialize Save/Delete calls themselves (the cache
// manager is the single writer); reads are safe at any time.
type Store struct {
	kv     kvstore.KV
	caps   Caps
	logger *slog.Logger

	// decoded caches the deserialized aggregate so per-word detector
	// traffic does not re-parse the blob on every read.
	decoded *expirable.LRU[string, *models.MultiPlatformCache]

	// warnedOnce tracks platforms that already logged a quota warning,
	// so repeated quota failures do not spam.
	mu         sync.Mutex
	warnedOnce map[string]bool
}

// decodedTTL bounds staleness of the read cache; every successful
// write refreshes the entry, so the TTL only matters if another
// process mutates the store file underneath us.
const decodedTTL = 30 * time.Second

// New creates a Store over the given KV.
func New(kv kvstore.KV, caps Caps, logger *slog.Logger) *Store {
	return &Store{
		kv:         kv,
		caps:       caps,
		logger:     logger,
		decoded:    expirable.NewLRU[string, *models.MultiPlatformCache](1, nil, decodedTTL),
		warnedOnce: make(map[string]bool),
	}
}

// LoadAll returns the whole aggregate, empty (never nil) if nothing
// was ever persisted.
func (s *Store) LoadAll(ctx context.Context) (*models.MultiPlatformCache, error) {
	if cached, ok := s.decoded.Get(aggregateKey); ok {
		return cached, nil
	}
	raw, err := s.kv.Get(ctx, aggregateKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return models.NewMultiPlatformCache(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading aggregate: %w", err)
	}
	var agg models.MultiPlatformCache
	if err := json.Unmarshal(raw, &agg); err != nil {
		// A corrupt blob is treated as absent: the cache is always
		// rebuildable from the remote platforms.
		s.logger.Warn("discarding corrupt cache blob", "error", err)
		return models.NewMultiPlatformCache(), nil
	}
	agg.EnsureBuckets()
	s.decoded.Add(aggregateKey, &agg)
	return &agg, nil
}

// Load returns one platform's snapshot, or (nil, nil) when absent.
// Absence is a valid state meaning "needs full fetch".
func (s *Store) Load(ctx context.Context, platformID string) (*models.PlatformSnapshot, error) {
	agg, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	return agg.Platforms[platformID], nil
}

// Save persists the snapshot inside the aggregate, walking the degrade
// ladder on quota pressure. The write is always a full replace of the
// platform's entry; other platforms' entries are preserved.
func (s *Store) Save(ctx context.Context, snapshot *models.PlatformSnapshot) (SaveResult, error) {
	loaded, err := s.LoadAll(ctx)
	if err != nil {
		return SaveResult{}, err
	}
	// Never mutate the loaded aggregate in place: readers may hold it
	// via the decoded cache.
	agg := cloneAggregate(loaded)

	// Rung 1: full snapshot, trimmed to the per-kind cap.
	trimmed := trimSnapshot(snapshot, s.caps.forKind(snapshot.Kind))
	agg.Platforms[snapshot.PlatformID] = trimmed
	err = s.writeAggregate(ctx, agg)
	if err == nil {
		s.clearWarned(snapshot.PlatformID)
		return SaveResult{State: SaveOK}, nil
	}
	if !errors.Is(err, kvstore.ErrQuotaExceeded) {
		return SaveResult{}, fmt.Errorf("persisting snapshot for %s: %w", snapshot.PlatformID, err)
	}

	// Rung 2: minimal snapshot.
	minimal := minimalSnapshot(trimmed, s.caps.Minimal, s.caps.MinimalAliases)
	agg.Platforms[snapshot.PlatformID] = minimal
	err = s.writeAggregate(ctx, agg)
	if err == nil {
		s.warnOnce(snapshot.PlatformID, "stored minimal snapshot only")
		return SaveResult{State: SaveDegraded, Reason: "quota exceeded on full snapshot"}, nil
	}
	if !errors.Is(err, kvstore.ErrQuotaExceeded) {
		return SaveResult{}, fmt.Errorf("persisting minimal snapshot for %s: %w", snapshot.PlatformID, err)
	}

	// Rung 3: drop the platform's entry and keep everyone else.
	delete(agg.Platforms, snapshot.PlatformID)
	if dropErr := s.writeAggregate(ctx, agg); dropErr != nil {
		// Even the dropped aggregate did not persist. Keep the
		// trimmed snapshot in the decoded cache so readers still see
		// the data until process exit.
		agg.Platforms[snapshot.PlatformID] = trimmed
		s.decoded.Add(aggregateKey, agg)
		s.warnOnce(snapshot.PlatformID, "dropped snapshot; aggregate write still failing")
		return SaveResult{State: SaveDropped, Reason: "quota exceeded; aggregate write failed"}, nil
	}
	s.warnOnce(snapshot.PlatformID, "dropped snapshot from persisted cache")
	return SaveResult{State: SaveDropped, Reason: "quota exceeded on minimal snapshot"}, nil
}

// Delete removes one platform's entry from the aggregate.
func (s *Store) Delete(ctx context.Context, platformID string) error {
	loaded, err := s.LoadAll(ctx)
	if err != nil {
		return err
	}
	if _, ok := loaded.Platforms[platformID]; !ok {
		return nil
	}
	agg := cloneAggregate(loaded)
	delete(agg.Platforms, platformID)
	if err := s.writeAggregate(ctx, agg); err != nil {
		return fmt.Errorf("deleting snapshot for %s: %w", platformID, err)
	}
	s.clearWarned(platformID)
	return nil
}

// Clear removes the whole aggregate record.
func (s *Store) Clear(ctx context.Context) error {
	s.decoded.Purge()
	if err := s.kv.Remove(ctx, aggregateKey); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	s.mu.Lock()
	s.warnedOnce = make(map[string]bool)
	s.mu.Unlock()
	return nil
}

// BytesInUse reports the KV store's total usage.
func (s *Store) BytesInUse(ctx context.Context) (int64, error) {
	return s.kv.BytesInUse(ctx)
}

func (s *Store) writeAggregate(ctx context.Context, agg *models.MultiPlatformCache) error {
	raw, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("encoding aggregate: %w", err)
	}
	if err := s.kv.Set(ctx, aggregateKey, raw); err != nil {
		return err
	}
	s.decoded.Add(aggregateKey, agg)
	return nil
}

func (s *Store) warnOnce(platformID, msg string) {
	s.mu.Lock()
	warned := s.warnedOnce[platformID]
	s.warnedOnce[platformID] = true
	s.mu.Unlock()
	if !warned {
		s.logger.Warn("storage quota pressure", "platform", platformID, "action", msg)
	}
}

func (s *Store) clearWarned(platformID string) {
	s.mu.Lock()
	delete(s.warnedOnce, platformID)
	s.mu.Unlock()
}

// cloneAggregate shallow-copies the aggregate's platform map so a
// pending mutation cannot be observed through the decoded read cache.
func cloneAggregate(agg *models.MultiPlatformCache) *models.MultiPlatformCache {
	out := models.NewMultiPlatformCache()
	for id, snap := range agg.Platforms {
		out.Platforms[id] = snap
	}
	return out
}

// trimSnapshot caps every type bucket, keeping the most recently
// appended entities and discarding the oldest.
func trimSnapshot(snap *models.PlatformSnapshot, cap int) *models.PlatformSnapshot {
	out := &models.PlatformSnapshot{
		PlatformID:  snap.PlatformID,
		Kind:        snap.Kind,
		Timestamp:   snap.Timestamp,
		LastRefresh: snap.LastRefresh,
		Entities:    make(map[models.EntityTypeKey][]models.CachedEntity, len(snap.Entities)),
	}
	for key, bucket := range snap.Entities {
		if cap > 0 && len(bucket) > cap {
			bucket = bucket[len(bucket)-cap:]
		}
		copied := make([]models.CachedEntity, len(bucket))
		copy(copied, bucket)
		out.Entities[key] = copied
	}
	out.EnsureBuckets()
	return out
}

// minimalSnapshot reduces every entity to id/name/type/external id and
// the first few aliases, and truncates buckets to the minimal cap.
func minimalSnapshot(snap *models.PlatformSnapshot, cap, maxAliases int) *models.PlatformSnapshot {
	out := &models.PlatformSnapshot{
		PlatformID:  snap.PlatformID,
		Kind:        snap.Kind,
		Timestamp:   snap.Timestamp,
		LastRefresh: snap.LastRefresh,
		Entities:    make(map[models.EntityTypeKey][]models.CachedEntity, len(snap.Entities)),
	}
	for key, bucket := range snap.Entities {
		if cap > 0 && len(bucket) > cap {
			bucket = bucket[len(bucket)-cap:]
		}
		reduced := make([]models.CachedEntity, 0, len(bucket))
		for _, e := range bucket {
			aliases := e.Aliases
			if len(aliases) > maxAliases {
				aliases = aliases[:maxAliases]
			}
			var copiedAliases []string
			if len(aliases) > 0 {
				copiedAliases = make([]string, len(aliases))
				copy(copiedAliases, aliases)
			}
			reduced = append(reduced, models.CachedEntity{
				ID:         e.ID,
				Name:       e.Name,
				Aliases:    copiedAliases,
				ExternalID: e.ExternalID,
				Type:       e.Type,
				PlatformID: e.PlatformID,
			})
		}
		out.Entities[key] = reduced
	}
	out.EnsureBuckets()
	return out
}
