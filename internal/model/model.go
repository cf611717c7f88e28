package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pda-zone/engine/internal/geo"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Player{},
	&PlayerLocation{},
	&LocationSample{},
	&HazardZone{},
	&RespawnZone{},
	&ArtifactType{},
	&Artifact{},
	&ControlPoint{},
	&EquipmentType{},
	&PlayerEquipment{},
	&InventoryItem{},
	&CacheVersion{},
	&GameEvent{},
}

// Player status values.
const (
	PlayerStatusAlive = "alive"
	PlayerStatusDead  = "dead"
)

// Artifact lifecycle states.
const (
	ArtifactStateHidden     = "hidden"
	ArtifactStateVisible    = "visible"
	ArtifactStateExtracting = "extracting"
	ArtifactStateExtracted  = "extracted"
	ArtifactStateLost       = "lost"
	ArtifactStateRespawning = "respawning"
)

// Equipment slots contributing radiation resistance.
const (
	SlotArmor    = "armor"
	SlotAddon1   = "addon1"
	SlotAddon2   = "addon2"
	SlotArtifact = "artifact"
)

////////////////////////
// PLAYER MODELS
////////////////////////

// Player is the persistent per-player game state.
type Player struct {
	gorm.Model
	ExternalID string `json:"id" gorm:"type:uuid;uniqueIndex;size:36"`
	Name       string `json:"name" gorm:"size:64"`
	Faction    string `json:"faction" gorm:"size:32"`
	Status     string `json:"status" gorm:"size:16;default:alive"`

	Reputation     int `json:"reputation"`
	ArtifactsFound int `json:"artifactsFound"`
	Rubles         int `json:"rubles"`

	// Radiation accrual state. RadiationZoneID pins dose attribution to the
	// first zone entered until the player leaves it.
	Radiation           float64    `json:"radiation"`
	RadiationZoneID     *uint      `json:"radiationZoneId"`
	LastRadiationCalcAt *time.Time `json:"lastRadiationCalcAt"`

	// Seconds accumulated inside a respawn zone while dead.
	ResurrectionSeconds float64 `json:"resurrectionSeconds"`
}

func (*Player) TableName() string {
	return "players"
}

func (p *Player) BeforeCreate(tx *gorm.DB) error {
	if p.ExternalID == "" {
		p.ExternalID = uuid.NewString()
	}
	return nil
}

// PlayerLocation is the single current position per player, upserted on every
// accepted report.
type PlayerLocation struct {
	PlayerID   uint       `json:"playerId" gorm:"primaryKey;autoIncrement:false"`
	Lat        float64    `json:"lat"`
	Lng        float64    `json:"lng"`
	Accuracy   float64    `json:"accuracy"`
	Location   geom.Point `json:"location"`
	ReportedAt time.Time  `json:"reportedAt" gorm:"index:idx_player_locations_reported_at"`
}

func (*PlayerLocation) TableName() string {
	return "player_locations"
}

// LocationSample is the immutable movement history row, written off the hot
// path by the history writer.
type LocationSample struct {
	ID       uint      `json:"id" gorm:"primaryKey"`
	Time     time.Time `json:"time" gorm:"index:idx_location_samples_time"`
	PlayerID uint      `json:"playerId" gorm:"index:idx_location_samples_player_id"`
	Lat      float64   `json:"lat"`
	Lng      float64   `json:"lng"`
	Accuracy float64   `json:"accuracy"`
}

func (*LocationSample) TableName() string {
	return "location_samples"
}

////////////////////////
// WORLD MODELS
////////////////////////

// HazardZone is a circular radiation field.
type HazardZone struct {
	gorm.Model
	Name         string     `json:"name" gorm:"size:127"`
	Lat          float64    `json:"lat"`
	Lng          float64    `json:"lng"`
	RadiusMeters float64    `json:"radiusMeters"`
	Level        float64    `json:"level"`
	Enabled      bool       `json:"enabled" gorm:"default:true"`
	ActiveFrom   *time.Time `json:"activeFrom"`
	ActiveUntil  *time.Time `json:"activeUntil"`
	Location     geom.Point `json:"location"`
}

func (*HazardZone) TableName() string {
	return "hazard_zones"
}

func (z *HazardZone) BeforeCreate(tx *gorm.DB) error {
	if z.Location.IsEmpty() {
		point, err := geo.Mercator(geo.Point{Lat: z.Lat, Lng: z.Lng})
		if err != nil {
			return err
		}
		z.Location = point
	}
	return nil
}

// ActiveAt reports whether the zone deals dose at the given instant.
func (z *HazardZone) ActiveAt(now time.Time) bool {
	if !z.Enabled {
		return false
	}
	if z.ActiveFrom != nil && now.Before(*z.ActiveFrom) {
		return false
	}
	if z.ActiveUntil != nil && now.After(*z.ActiveUntil) {
		return false
	}
	return true
}

// RespawnZone is a safe circle where dead players regain alive status by
// dwelling inside it.
type RespawnZone struct {
	gorm.Model
	Name            string  `json:"name" gorm:"size:127"`
	Lat             float64 `json:"lat"`
	Lng             float64 `json:"lng"`
	RadiusMeters    float64 `json:"radiusMeters"`
	RequiredSeconds float64 `json:"requiredSeconds" gorm:"default:60"`
	Enabled         bool    `json:"enabled" gorm:"default:true"`
}

func (*RespawnZone) TableName() string {
	return "respawn_zones"
}

////////////////////////
// ARTIFACT MODELS
////////////////////////

// ArtifactType describes a class of artifact.
type ArtifactType struct {
	gorm.Model
	Name            string  `json:"name" gorm:"size:127"`
	BasePrice       int     `json:"basePrice"`
	RadiationResist float64 `json:"radiationResist"`
}

func (*ArtifactType) TableName() string {
	return "artifact_types"
}

// Artifact is one placed artifact instance. Claim transients (ExtractingBy,
// ExtractingSince) are only ever mutated through guarded updates in the store.
type Artifact struct {
	gorm.Model
	ExternalID string       `json:"id" gorm:"type:uuid;uniqueIndex;size:36"`
	TypeID     uint         `json:"typeId"`
	Type       ArtifactType `json:"type" gorm:"foreignkey:TypeID"`
	State      string       `json:"state" gorm:"size:16;index:idx_artifacts_state;default:hidden"`

	Lat      float64    `json:"lat"`
	Lng      float64    `json:"lng"`
	Location geom.Point `json:"location"`

	// Anchor is the original placement; respawn relocation scatters around
	// it, not around the last position.
	AnchorLat float64 `json:"anchorLat"`
	AnchorLng float64 `json:"anchorLng"`

	OwnerID         *uint      `json:"ownerId"`
	ExtractingBy    *uint      `json:"extractingBy"`
	ExtractingSince *time.Time `json:"extractingSince"`

	SpawnAt   *time.Time `json:"spawnAt"`
	ExpiresAt *time.Time `json:"expiresAt"`

	RespawnEnabled      bool    `json:"respawnEnabled"`
	RespawnDelayMinutes int     `json:"respawnDelayMinutes" gorm:"default:30"`
	RespawnRadiusMeters float64 `json:"respawnRadiusMeters" gorm:"default:50"`
}

func (*Artifact) TableName() string {
	return "artifacts"
}

func (a *Artifact) BeforeCreate(tx *gorm.DB) error {
	if a.ExternalID == "" {
		a.ExternalID = uuid.NewString()
	}
	if a.AnchorLat == 0 && a.AnchorLng == 0 {
		a.AnchorLat = a.Lat
		a.AnchorLng = a.Lng
	}
	if a.Location.IsEmpty() {
		point, err := geo.Mercator(geo.Point{Lat: a.Lat, Lng: a.Lng})
		if err != nil {
			return err
		}
		a.Location = point
	}
	return nil
}

// Expired reports whether the artifact's availability window has passed.
func (a *Artifact) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

// Spawned reports whether the artifact's spawn time has arrived.
func (a *Artifact) Spawned(now time.Time) bool {
	return a.SpawnAt == nil || !now.Before(*a.SpawnAt)
}

////////////////////////
// CONTROL POINT MODELS
////////////////////////

// ControlPoint is a capturable faction objective.
type ControlPoint struct {
	gorm.Model
	Name         string  `json:"name" gorm:"size:127"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	RadiusMeters float64 `json:"radiusMeters" gorm:"default:10"`
	Enabled      bool    `json:"enabled" gorm:"default:true"`

	ControlledByFaction  *string    `json:"controlledByFaction" gorm:"size:32"`
	ControlledByPlayerID *uint      `json:"controlledByPlayerId"`
	CapturingBy          *uint      `json:"capturingBy"`
	CapturingSince       *time.Time `json:"capturingSince"`
}

func (*ControlPoint) TableName() string {
	return "control_points"
}

////////////////////////
// EQUIPMENT MODELS
////////////////////////

// EquipmentType describes purchasable gear. RadiationResist contributes to
// the player's resist sum while the item is equipped.
type EquipmentType struct {
	gorm.Model
	Name            string  `json:"name" gorm:"size:127"`
	Slot            string  `json:"slot" gorm:"size:16"`
	Price           int     `json:"price"`
	RadiationResist float64 `json:"radiationResist"`
}

func (*EquipmentType) TableName() string {
	return "equipment_types"
}

// PlayerEquipment is an owned gear item.
type PlayerEquipment struct {
	gorm.Model
	PlayerID        uint          `json:"playerId" gorm:"index:idx_player_equipments_player_id"`
	EquipmentTypeID uint          `json:"equipmentTypeId"`
	EquipmentType   EquipmentType `json:"equipmentType" gorm:"foreignkey:EquipmentTypeID"`
	Slot            string        `json:"slot" gorm:"size:16"`
	Equipped        bool          `json:"equipped"`
}

func (*PlayerEquipment) TableName() string {
	return "player_equipments"
}

// InventoryItem is an extracted artifact held by a player. An equipped item
// occupies the artifact slot and adds its type's resist.
type InventoryItem struct {
	gorm.Model
	PlayerID       uint         `json:"playerId" gorm:"index:idx_inventory_items_player_id"`
	ArtifactTypeID uint         `json:"artifactTypeId"`
	ArtifactType   ArtifactType `json:"artifactType" gorm:"foreignkey:ArtifactTypeID"`
	Equipped       bool         `json:"equipped"`
	AcquiredAt     time.Time    `json:"acquiredAt"`
}

func (*InventoryItem) TableName() string {
	return "inventory_items"
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// CacheVersion is a named counter bumped whenever the backing data for a
// read-mostly cache changes.
type CacheVersion struct {
	Key     string `json:"key" gorm:"primaryKey;size:64"`
	Version uint64 `json:"version"`
}

func (*CacheVersion) TableName() string {
	return "cache_versions"
}

// GameEvent is an append-only audit record with a free-form jsonb payload.
type GameEvent struct {
	gorm.Model
	Type     string         `json:"type" gorm:"size:64;index:idx_game_events_type"`
	PlayerID *uint          `json:"playerId"`
	Payload  datatypes.JSON `json:"payload"`
}

func (*GameEvent) TableName() string {
	return "game_events"
}
