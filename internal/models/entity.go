package models

// EntityTypeKey classifies the kind of named entity within a platform.
type EntityTypeKey string

const (
	TypeThreatActor   EntityTypeKey = "threatActor"
	TypeIntrusionSet  EntityTypeKey = "intrusionSet"
	TypeMalware       EntityTypeKey = "malware"
	TypeAttackPattern EntityTypeKey = "attackPattern"
	TypeTool          EntityTypeKey = "tool"
	TypeCampaign      EntityTypeKey = "campaign"

	TypeAsset      EntityTypeKey = "asset"
	TypeAssetGroup EntityTypeKey = "assetGroup"
	TypeTeam       EntityTypeKey = "team"
	TypePlayer     EntityTypeKey = "player"
	TypeFinding    EntityTypeKey = "finding"
)

// PlatformKind identifies which family of remote platform a configured
// platform belongs to. Each kind owns a fixed, ordered set of entity
// type keys.
type PlatformKind string

const (
	KindThreatIntel PlatformKind = "threat_intel"
	KindSimulation  PlatformKind = "simulation"
)

var threatIntelTypes = []EntityTypeKey{
	TypeThreatActor,
	TypeIntrusionSet,
	TypeMalware,
	TypeAttackPattern,
	TypeTool,
	TypeCampaign,
}

var simulationTypes = []EntityTypeKey{
	TypeAsset,
	TypeAssetGroup,
	TypeTeam,
	TypePlayer,
	TypeFinding,
}

// TypeKeys returns the fixed, ordered set of entity type keys for the
// platform kind. Unknown kinds return nil.
func (k PlatformKind) TypeKeys() []EntityTypeKey {
	switch k {
	case KindThreatIntel:
		return threatIntelTypes
	case KindSimulation:
		return simulationTypes
	}
	return nil
}

// IsValid returns true if the platform kind is recognized.
func (k PlatformKind) IsValid() bool {
	return k == KindThreatIntel || k == KindSimulation
}

// HasType returns true if the type key belongs to this platform kind.
func (k PlatformKind) HasType(t EntityTypeKey) bool {
	for _, key := range k.TypeKeys() {
		if key == t {
			return true
		}
	}
	return false
}

// CachedEntity is one remote entity as held in a platform snapshot.
// ID is unique within a platform+type bucket; re-inserting the same ID
// replaces the previous entry rather than appending.
type CachedEntity struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Aliases    []string      `json:"aliases,omitempty"`
	ExternalID string        `json:"external_id,omitempty"`
	Type       EntityTypeKey `json:"type"`
	PlatformID string        `json:"platform_id"`
}
