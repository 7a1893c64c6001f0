package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPlatformSnapshot_AllBucketsPresentAndEmpty(t *testing.T) {
	now := time.Now().UTC()
	for _, kind := range []PlatformKind{KindThreatIntel, KindSimulation} {
		snap := NewPlatformSnapshot("p1", kind, now)
		assert.Len(t, snap.Entities, len(kind.TypeKeys()))
		for _, key := range kind.TypeKeys() {
			bucket, ok := snap.Entities[key]
			assert.True(t, ok, "bucket %s missing for %s", key, kind)
			assert.NotNil(t, bucket)
			assert.Empty(t, bucket)
		}
		assert.Equal(t, now, snap.Timestamp)
		assert.Equal(t, now, snap.LastRefresh)
	}
}

func TestEnsureBuckets_AfterJSONRoundTrip(t *testing.T) {
	snap := NewPlatformSnapshot("p1", KindThreatIntel, time.Now().UTC())
	snap.Entities[TypeMalware] = []CachedEntity{{ID: "m-1", Name: "Emotet"}}

	// Empty slices survive marshalling but a hand-edited or older blob
	// may omit buckets entirely.
	raw, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded PlatformSnapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))
	decoded.Entities = map[EntityTypeKey][]CachedEntity{
		TypeMalware: decoded.Entities[TypeMalware],
	}
	decoded.EnsureBuckets()

	for _, key := range KindThreatIntel.TypeKeys() {
		assert.NotNil(t, decoded.Entities[key])
	}
	assert.Len(t, decoded.Entities[TypeMalware], 1)
}

func TestEnsureBuckets_NilMap(t *testing.T) {
	snap := &PlatformSnapshot{PlatformID: "p1", Kind: KindSimulation}
	snap.EnsureBuckets()
	assert.Len(t, snap.Entities, len(KindSimulation.TypeKeys()))
}

func TestSnapshotTotalAndAge(t *testing.T) {
	now := time.Now().UTC()
	snap := NewPlatformSnapshot("p1", KindThreatIntel, now.Add(-90*time.Minute))
	snap.Entities[TypeMalware] = []CachedEntity{{ID: "m-1"}, {ID: "m-2"}}
	snap.Entities[TypeTool] = []CachedEntity{{ID: "t-1"}}

	assert.Equal(t, 3, snap.Total())
	assert.Equal(t, 90*time.Minute, snap.Age(now))
}

func TestPlatformKind_HasTypeAndIsValid(t *testing.T) {
	assert.True(t, KindThreatIntel.HasType(TypeMalware))
	assert.False(t, KindThreatIntel.HasType(TypeAsset))
	assert.True(t, KindSimulation.HasType(TypeFinding))
	assert.False(t, KindSimulation.HasType(TypeCampaign))

	assert.True(t, KindThreatIntel.IsValid())
	assert.True(t, KindSimulation.IsValid())
	assert.False(t, PlatformKind("bogus").IsValid())
}

func TestMultiPlatformCache_EnsureBuckets(t *testing.T) {
	cache := &MultiPlatformCache{
		Platforms: map[string]*PlatformSnapshot{
			"p1": {PlatformID: "p1", Kind: KindThreatIntel},
		},
	}
	cache.EnsureBuckets()
	require.NotNil(t, cache.Platforms["p1"].Entities)
	assert.Len(t, cache.Platforms["p1"].Entities, len(KindThreatIntel.TypeKeys()))

	var nilMap MultiPlatformCache
	nilMap.EnsureBuckets()
	assert.NotNil(t, nilMap.Platforms)
}
