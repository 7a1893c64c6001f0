package models

import "time"

// PlatformSnapshot is a full point-in-time capture of one platform's
// cached entities. Every recognized type key for the platform's kind
// is always present in Entities, possibly as an empty slice; the
// structure is never partially initialized.
type PlatformSnapshot struct {
	PlatformID string       `json:"platform_id"`
	Kind       PlatformKind `json:"kind"`
	// Timestamp is the creation / last full-rebuild time and drives
	// expiry. LastRefresh is bumped on every incremental type update
	// and drives the softer refresh signal.
	Timestamp   time.Time                        `json:"timestamp"`
	LastRefresh time.Time                        `json:"last_refresh"`
	Entities    map[EntityTypeKey][]CachedEntity `json:"entities"`
}

// NewPlatformSnapshot creates a snapshot with every type bucket of the
// kind present and empty.
func NewPlatformSnapshot(platformID string, kind PlatformKind, now time.Time) *PlatformSnapshot {
	s := &PlatformSnapshot{
		PlatformID:  platformID,
		Kind:        kind,
		Timestamp:   now,
		LastRefresh: now,
		Entities:    make(map[EntityTypeKey][]CachedEntity, len(kind.TypeKeys())),
	}
	for _, key := range kind.TypeKeys() {
		s.Entities[key] = []CachedEntity{}
	}
	return s
}

// EnsureBuckets re-establishes the always-present invariant after
// deserialization, which can leave buckets nil or missing.
func (s *PlatformSnapshot) EnsureBuckets() {
	if s.Entities == nil {
		s.Entities = make(map[EntityTypeKey][]CachedEntity, len(s.Kind.TypeKeys()))
	}
	for _, key := range s.Kind.TypeKeys() {
		if s.Entities[key] == nil {
			s.Entities[key] = []CachedEntity{}
		}
	}
}

// Total returns the number of entities across all type buckets.
func (s *PlatformSnapshot) Total() int {
	n := 0
	for _, bucket := range s.Entities {
		n += len(bucket)
	}
	return n
}

// Age returns how long ago the snapshot was fully rebuilt.
func (s *PlatformSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.Timestamp)
}

// MultiPlatformCache is the persisted aggregate: one snapshot per
// configured platform. It is owned and mutated exclusively by the
// cache manager; everything else reads it.
type MultiPlatformCache struct {
	Platforms map[string]*PlatformSnapshot `json:"platforms"`
}

// NewMultiPlatformCache returns an empty aggregate.
func NewMultiPlatformCache() *MultiPlatformCache {
	return &MultiPlatformCache{Platforms: make(map[string]*PlatformSnapshot)}
}

// EnsureBuckets normalizes every snapshot after deserialization.
func (c *MultiPlatformCache) EnsureBuckets() {
	if c.Platforms == nil {
		c.Platforms = make(map[string]*PlatformSnapshot)
	}
	for _, snap := range c.Platforms {
		snap.EnsureBuckets()
	}
}

// PlatformStats describes one platform's cached data for the stats
// surface exposed to the detector and UI.
type PlatformStats struct {
	PlatformID string                `json:"platform_id"`
	Total      int                   `json:"total"`
	ByType     map[EntityTypeKey]int `json:"by_type"`
	AgeSeconds float64               `json:"age_seconds"`
	IsExpired  bool                  `json:"is_expired"`
}

// CacheStats aggregates PlatformStats across all cached platforms.
type CacheStats struct {
	PlatformCount int             `json:"platform_count"`
	Total         int             `json:"total"`
	Platforms     []PlatformStats `json:"platforms"`
}
