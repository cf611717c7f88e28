package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pda-zone/engine/internal/geo"
	"github.com/pda-zone/engine/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Cache version keys.
const (
	VersionHazardZones   = "hazard_zones"
	VersionRespawnZones  = "respawn_zones"
	VersionArtifacts     = "artifacts"
	VersionControlPoints = "control_points"
)

// Store is the persistence layer. All lifecycle transitions that can be
// raced by concurrent requests go through guarded updates here: the WHERE
// clause restates the precondition and RowsAffected tells the caller whether
// it won. No transition is ever written with a plain Save.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for migrations and tests.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// WithTx runs fn inside a transaction against a Store bound to it.
func (s *Store) WithTx(fn func(tx *Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}

////////////////////////
// PLAYERS
////////////////////////

func (s *Store) GetPlayer(id uint) (*model.Player, error) {
	var p model.Player
	if err := s.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetPlayerByExternalID(externalID string) (*model.Player, error) {
	var p model.Player
	if err := s.db.Where("external_id = ?", externalID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// PlayerResist sums the radiation resistance of the player's equipped gear
// (armor, addon1, addon2) and the equipped artifact. The cap is applied by
// the accrual engine, not here.
func (s *Store) PlayerResist(playerID uint) (float64, error) {
	var gearResist float64
	err := s.db.Model(&model.PlayerEquipment{}).
		Joins("JOIN equipment_types ON equipment_types.id = player_equipments.equipment_type_id").
		Where("player_equipments.player_id = ? AND player_equipments.equipped = ?", playerID, true).
		Where("player_equipments.slot IN ?", []string{model.SlotArmor, model.SlotAddon1, model.SlotAddon2}).
		Select("COALESCE(SUM(equipment_types.radiation_resist), 0)").
		Scan(&gearResist).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum equipment resist: %w", err)
	}

	var artifactResist float64
	err = s.db.Model(&model.InventoryItem{}).
		Joins("JOIN artifact_types ON artifact_types.id = inventory_items.artifact_type_id").
		Where("inventory_items.player_id = ? AND inventory_items.equipped = ?", playerID, true).
		Select("COALESCE(SUM(artifact_types.radiation_resist), 0)").
		Scan(&artifactResist).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum artifact resist: %w", err)
	}

	return gearResist + artifactResist, nil
}

// ApplyRadiation persists one accrual result. The update is conditioned on
// the calc timestamp the computation started from, so of two concurrent
// reports only the first lands; the loser's write affects zero rows.
func (s *Store) ApplyRadiation(
	playerID uint,
	prevCalcAt *time.Time,
	radiation float64,
	zoneID *uint,
	calcAt time.Time,
) (bool, error) {
	q := s.db.Model(&model.Player{}).Where("id = ?", playerID)
	if prevCalcAt == nil {
		q = q.Where("last_radiation_calc_at IS NULL")
	} else {
		q = q.Where("last_radiation_calc_at = ?", *prevCalcAt)
	}

	res := q.Updates(map[string]interface{}{
		"radiation":              radiation,
		"radiation_zone_id":      zoneID,
		"last_radiation_calc_at": calcAt,
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// AddPickupStats bumps the artifact counter and reputation after a completed
// extraction.
func (s *Store) AddPickupStats(playerID uint, reputation int) error {
	return s.db.Model(&model.Player{}).Where("id = ?", playerID).
		Updates(map[string]interface{}{
			"artifacts_found": gorm.Expr("artifacts_found + 1"),
			"reputation":      gorm.Expr("reputation + ?", reputation),
		}).Error
}

// AddRubles credits a sale.
func (s *Store) AddRubles(playerID uint, amount int) error {
	return s.db.Model(&model.Player{}).Where("id = ?", playerID).
		Update("rubles", gorm.Expr("rubles + ?", amount)).Error
}

// SetResurrectionProgress stores the dwell seconds a dead player has
// accumulated inside a respawn zone.
func (s *Store) SetResurrectionProgress(playerID uint, seconds float64) error {
	return s.db.Model(&model.Player{}).Where("id = ?", playerID).
		Update("resurrection_seconds", seconds).Error
}

// RevivePlayer flips a dead player back to alive with cleared radiation. The
// guard keeps a duplicate report from reviving twice.
func (s *Store) RevivePlayer(playerID uint) (bool, error) {
	res := s.db.Model(&model.Player{}).
		Where("id = ? AND status = ?", playerID, model.PlayerStatusDead).
		Updates(map[string]interface{}{
			"status":               model.PlayerStatusAlive,
			"radiation":            0,
			"radiation_zone_id":    nil,
			"resurrection_seconds": 0,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

////////////////////////
// LOCATIONS
////////////////////////

// UpsertLocation writes the player's current position, one row per player.
func (s *Store) UpsertLocation(loc *model.PlayerLocation) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "player_id"}},
		UpdateAll: true,
	}).Create(loc).Error
}

func (s *Store) GetLocation(playerID uint) (*model.PlayerLocation, error) {
	var loc model.PlayerLocation
	if err := s.db.Where("player_id = ?", playerID).First(&loc).Error; err != nil {
		return nil, err
	}
	return &loc, nil
}

// CreateLocationSamples batch-inserts history rows drained from the queue.
func (s *Store) CreateLocationSamples(samples []model.LocationSample) error {
	if len(samples) == 0 {
		return nil
	}
	return s.db.Create(&samples).Error
}

////////////////////////
// ZONES
////////////////////////

// EnabledHazardZones returns enabled zones ordered by id. The stable order
// makes first-entered dose attribution deterministic across processes.
func (s *Store) EnabledHazardZones() ([]model.HazardZone, error) {
	var zones []model.HazardZone
	err := s.db.Where("enabled = ?", true).Order("id ASC").Find(&zones).Error
	return zones, err
}

func (s *Store) EnabledRespawnZones() ([]model.RespawnZone, error) {
	var zones []model.RespawnZone
	err := s.db.Where("enabled = ?", true).Order("id ASC").Find(&zones).Error
	return zones, err
}

////////////////////////
// ARTIFACTS
////////////////////////

func (s *Store) GetArtifact(id uint) (*model.Artifact, error) {
	var a model.Artifact
	if err := s.db.Preload("Type").First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// FieldArtifacts returns artifacts currently placed in the world, the set
// the detection scan works from.
func (s *Store) FieldArtifacts() ([]model.Artifact, error) {
	var artifacts []model.Artifact
	err := s.db.Preload("Type").
		Where("state IN ?", []string{model.ArtifactStateHidden, model.ArtifactStateVisible}).
		Order("id ASC").
		Find(&artifacts).Error
	return artifacts, err
}

// ClaimArtifact attempts the hidden|visible -> extracting transition. The
// guard restates every precondition a racing request could invalidate.
func (s *Store) ClaimArtifact(artifactID, playerID uint, now time.Time) (bool, error) {
	res := s.db.Model(&model.Artifact{}).
		Where("id = ? AND owner_id IS NULL AND extracting_by IS NULL AND state IN ?",
			artifactID, []string{model.ArtifactStateHidden, model.ArtifactStateVisible}).
		Updates(map[string]interface{}{
			"state":            model.ArtifactStateExtracting,
			"extracting_by":    playerID,
			"extracting_since": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FinishArtifact attempts extracting -> extracted for the claiming player.
func (s *Store) FinishArtifact(artifactID, playerID uint) (bool, error) {
	res := s.db.Model(&model.Artifact{}).
		Where("id = ? AND owner_id IS NULL AND extracting_by = ? AND state = ?",
			artifactID, playerID, model.ArtifactStateExtracting).
		Updates(map[string]interface{}{
			"state":            model.ArtifactStateExtracted,
			"owner_id":         playerID,
			"extracting_by":    nil,
			"extracting_since": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ReleaseArtifact reverts the claimant's extracting state back to the given
// field state (visible after a failed distance re-check, hidden on cancel).
func (s *Store) ReleaseArtifact(artifactID, playerID uint, toState string) (bool, error) {
	res := s.db.Model(&model.Artifact{}).
		Where("id = ? AND extracting_by = ? AND state = ?",
			artifactID, playerID, model.ArtifactStateExtracting).
		Updates(map[string]interface{}{
			"state":            toState,
			"extracting_by":    nil,
			"extracting_since": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ScheduleRespawn moves an extracted artifact into the respawning state at a
// new scattered position. The stored point moves with the lat/lng pair so map
// consumers never see a stale projection.
func (s *Store) ScheduleRespawn(artifactID uint, lat, lng float64, spawnAt time.Time) error {
	point, err := geo.Mercator(geo.Point{Lat: lat, Lng: lng})
	if err != nil {
		return fmt.Errorf("failed to project respawn position: %w", err)
	}
	return s.db.Model(&model.Artifact{}).
		Where("id = ? AND state = ?", artifactID, model.ArtifactStateExtracted).
		Updates(map[string]interface{}{
			"state":    model.ArtifactStateRespawning,
			"owner_id": nil,
			"lat":      lat,
			"lng":      lng,
			"location": point,
			"spawn_at": spawnAt,
		}).Error
}

// ActivateDueRespawns flips respawning artifacts whose spawn time has passed
// back to hidden. Expired ones go to lost instead.
func (s *Store) ActivateDueRespawns(now time.Time) (int, error) {
	expired := s.db.Model(&model.Artifact{}).
		Where("state = ? AND spawn_at <= ? AND expires_at IS NOT NULL AND expires_at <= ?",
			model.ArtifactStateRespawning, now, now).
		Updates(map[string]interface{}{
			"state":    model.ArtifactStateLost,
			"spawn_at": nil,
		})
	if expired.Error != nil {
		return 0, expired.Error
	}

	res := s.db.Model(&model.Artifact{}).
		Where("state = ? AND spawn_at <= ?", model.ArtifactStateRespawning, now).
		Updates(map[string]interface{}{
			"state":    model.ArtifactStateHidden,
			"spawn_at": nil,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

// RevealArtifact performs the idempotent hidden -> visible flip when a player
// walks into detection range.
func (s *Store) RevealArtifact(artifactID uint) error {
	return s.db.Model(&model.Artifact{}).
		Where("id = ? AND state = ?", artifactID, model.ArtifactStateHidden).
		Update("state", model.ArtifactStateVisible).Error
}

// MarkArtifactLost expires an artifact out of the field.
func (s *Store) MarkArtifactLost(artifactID uint) error {
	return s.db.Model(&model.Artifact{}).
		Where("id = ?", artifactID).
		Updates(map[string]interface{}{
			"state":            model.ArtifactStateLost,
			"extracting_by":    nil,
			"extracting_since": nil,
		}).Error
}

////////////////////////
// INVENTORY
////////////////////////

func (s *Store) AddInventoryItem(playerID, artifactTypeID uint, at time.Time) error {
	return s.db.Create(&model.InventoryItem{
		PlayerID:       playerID,
		ArtifactTypeID: artifactTypeID,
		AcquiredAt:     at,
	}).Error
}

func (s *Store) GetInventoryItem(id uint) (*model.InventoryItem, error) {
	var item model.InventoryItem
	if err := s.db.Preload("ArtifactType").First(&item, id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) DeleteInventoryItem(id, playerID uint) (bool, error) {
	res := s.db.Where("id = ? AND player_id = ?", id, playerID).
		Delete(&model.InventoryItem{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

////////////////////////
// CONTROL POINTS
////////////////////////

func (s *Store) GetControlPoint(id uint) (*model.ControlPoint, error) {
	var cp model.ControlPoint
	if err := s.db.First(&cp, id).Error; err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *Store) EnabledControlPoints() ([]model.ControlPoint, error) {
	var points []model.ControlPoint
	err := s.db.Where("enabled = ?", true).Order("id ASC").Find(&points).Error
	return points, err
}

// ClaimControlPoint starts a capture, first claimer wins.
func (s *Store) ClaimControlPoint(pointID, playerID uint, now time.Time) (bool, error) {
	res := s.db.Model(&model.ControlPoint{}).
		Where("id = ? AND capturing_by IS NULL AND enabled = ?", pointID, true).
		Updates(map[string]interface{}{
			"capturing_by":    playerID,
			"capturing_since": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FinishControlPoint transfers ownership to the capturing player's faction
// and clears the transient claim in the same statement.
func (s *Store) FinishControlPoint(pointID, playerID uint, faction string) (bool, error) {
	res := s.db.Model(&model.ControlPoint{}).
		Where("id = ? AND capturing_by = ?", pointID, playerID).
		Updates(map[string]interface{}{
			"controlled_by_faction":   faction,
			"controlled_by_player_id": playerID,
			"capturing_by":            nil,
			"capturing_since":         nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ReleaseControlPoint cancels the claimant's capture.
func (s *Store) ReleaseControlPoint(pointID, playerID uint) (bool, error) {
	res := s.db.Model(&model.ControlPoint{}).
		Where("id = ? AND capturing_by = ?", pointID, playerID).
		Updates(map[string]interface{}{
			"capturing_by":    nil,
			"capturing_since": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

////////////////////////
// CACHE VERSIONS
////////////////////////

func (s *Store) CacheVersion(key string) (uint64, error) {
	var cv model.CacheVersion
	err := s.db.Where("key = ?", key).First(&cv).Error
	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return cv.Version, nil
}

// BumpCacheVersion advances the counter so every process re-fetches the
// dataset on its next read.
func (s *Store) BumpCacheVersion(key string) error {
	res := s.db.Model(&model.CacheVersion{}).
		Where("key = ?", key).
		Update("version", gorm.Expr("version + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.db.Create(&model.CacheVersion{Key: key, Version: 1}).Error
	}
	return nil
}

////////////////////////
// EVENTS
////////////////////////

// AppendEvent writes an audit record with a jsonb payload.
func (s *Store) AppendEvent(eventType string, playerID *uint, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return s.db.Create(&model.GameEvent{
		Type:     eventType,
		PlayerID: playerID,
		Payload:  raw,
	}).Error
}
