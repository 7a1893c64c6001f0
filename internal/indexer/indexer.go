// Package indexer flattens the multi-platform cache into the derived
// name index the text-scanning detector consumes: a case-folded
// name-or-alias string mapped to its candidate entities. The index is
// disposable; it is rebuilt on demand and never persisted.
package indexer

import (
	"strings"

	"github.com/ajitpratap0/threatlex/internal/models"
)

const (
	// DefaultMinTermLength filters out short strings that flood the
	// detector with false positives.
	DefaultMinTermLength = 4
)

// DefaultStopTerms are generic strings that recur across unrelated
// seed data and must never become lookup keys.
var DefaultStopTerms = []string{
	"test",
	"demo",
	"default",
	"example",
	"unknown",
	"true",
	"false",
	"null",
	"none",
}

// Candidate is one index hit: an entity plus the platform it came
// from. A single key may map to several candidates (same name,
// different type or platform); callers must treat a hit as a
// candidate set, not a resolved identity.
type Candidate struct {
	Entity     models.CachedEntity `json:"entity"`
	PlatformID string              `json:"platform_id"`
}

// NameIndex maps lower-cased names, aliases and external ids to their
// candidate entities.
type NameIndex map[string][]Candidate

// Lookup case-folds the term and returns its candidate set, nil when
// the term is unknown.
func (idx NameIndex) Lookup(term string) []Candidate {
	return idx[strings.ToLower(term)]
}

// Len returns the number of distinct keys.
func (idx NameIndex) Len() int { return len(idx) }

// Builder constructs NameIndex values with configurable filtering.
type Builder struct {
	minTermLength int
	stopTerms     map[string]bool
}

// NewBuilder creates a builder. A zero minTermLength selects the
// default; a nil stopTerms selects the default set.
func NewBuilder(minTermLength int, stopTerms []string) *Builder {
	if minTermLength <= 0 {
		minTermLength = DefaultMinTermLength
	}
	if stopTerms == nil {
		stopTerms = DefaultStopTerms
	}
	stops := make(map[string]bool, len(stopTerms))
	for _, t := range stopTerms {
		stops[strings.ToLower(t)] = true
	}
	return &Builder{minTermLength: minTermLength, stopTerms: stops}
}

// Build flattens every platform, every type bucket, every entity into
// one index. Names and aliases pass the length and stop-term filters;
// external ids are inserted unconditionally since short codes are
// deliberately exact.
func (b *Builder) Build(cache *models.MultiPlatformCache) NameIndex {
	idx := make(NameIndex)
	if cache == nil {
		return idx
	}
	for platformID, snap := range cache.Platforms {
		for _, key := range snap.Kind.TypeKeys() {
			for _, entity := range snap.Entities[key] {
				b.insert(idx, entity.Name, entity, platformID, true)
				for _, alias := range entity.Aliases {
					b.insert(idx, alias, entity, platformID, true)
				}
				if entity.ExternalID != "" {
					b.insert(idx, entity.ExternalID, entity, platformID, false)
				}
			}
		}
	}
	return idx
}

// insert adds the entity under the folded term, skipping filtered
// terms and entities already present under that key.
func (b *Builder) insert(idx NameIndex, term string, entity models.CachedEntity, platformID string, filtered bool) {
	folded := strings.ToLower(strings.TrimSpace(term))
	if folded == "" {
		return
	}
	if filtered {
		if len([]rune(folded)) < b.minTermLength || b.stopTerms[folded] {
			return
		}
	}
	for _, existing := range idx[folded] {
		if existing.Entity.ID == entity.ID && existing.PlatformID == platformID {
			return
		}
	}
	idx[folded] = append(idx[folded], Candidate{Entity: entity, PlatformID: platformID})
}
