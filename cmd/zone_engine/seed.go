package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/pda-zone/engine/internal/geo"
	"github.com/pda-zone/engine/internal/model"
	"github.com/pda-zone/engine/internal/store"
)

// seedDemoWorld populates a small playable world for local testing: a
// handful of zones and control points around a center, artifact types and
// scattered artifact instances, plus two demo players.
func seedDemoWorld() error {
	center := geo.Point{Lat: 50.45, Lng: 30.52}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	db := dbManager.DB

	artifactTypes := []model.ArtifactType{
		{Name: "Medusa", BasePrice: 800, RadiationResist: 0},
		{Name: "Stone Blood", BasePrice: 1500, RadiationResist: 10},
		{Name: "Nightstar", BasePrice: 3000, RadiationResist: 25},
	}
	if err := db.Create(&artifactTypes).Error; err != nil {
		return fmt.Errorf("failed to seed artifact types: %w", err)
	}

	equipmentTypes := []model.EquipmentType{
		{Name: "Leather Jacket", Slot: model.SlotArmor, Price: 500, RadiationResist: 5},
		{Name: "SEVA Suit", Slot: model.SlotArmor, Price: 8000, RadiationResist: 40},
		{Name: "Lead Container", Slot: model.SlotAddon1, Price: 2000, RadiationResist: 15},
	}
	if err := db.Create(&equipmentTypes).Error; err != nil {
		return fmt.Errorf("failed to seed equipment types: %w", err)
	}

	zones := []model.HazardZone{
		{Name: "Burner Field", Lat: center.Lat + 0.002, Lng: center.Lng, RadiusMeters: 120, Level: 40, Enabled: true},
		{Name: "Scorcher", Lat: center.Lat - 0.003, Lng: center.Lng + 0.002, RadiusMeters: 60, Level: 90, Enabled: true},
	}
	if err := db.Create(&zones).Error; err != nil {
		return fmt.Errorf("failed to seed hazard zones: %w", err)
	}

	respawns := []model.RespawnZone{
		{Name: "Rookie Camp", Lat: center.Lat, Lng: center.Lng - 0.004, RadiusMeters: 50, RequiredSeconds: 60, Enabled: true},
	}
	if err := db.Create(&respawns).Error; err != nil {
		return fmt.Errorf("failed to seed respawn zones: %w", err)
	}

	points := []model.ControlPoint{
		{Name: "Sawmill", Lat: center.Lat + 0.004, Lng: center.Lng + 0.003, RadiusMeters: 10, Enabled: true},
		{Name: "Old Depot", Lat: center.Lat - 0.001, Lng: center.Lng - 0.002, RadiusMeters: 10, Enabled: true},
	}
	if err := db.Create(&points).Error; err != nil {
		return fmt.Errorf("failed to seed control points: %w", err)
	}

	for i := 0; i < 10; i++ {
		pos := geo.RandomPointInDisk(center, 400, rng)
		a := model.Artifact{
			TypeID:              artifactTypes[rng.Intn(len(artifactTypes))].ID,
			State:               model.ArtifactStateHidden,
			Lat:                 pos.Lat,
			Lng:                 pos.Lng,
			RespawnEnabled:      true,
			RespawnDelayMinutes: 30,
			RespawnRadiusMeters: 50,
		}
		if err := db.Create(&a).Error; err != nil {
			return fmt.Errorf("failed to seed artifact: %w", err)
		}
	}

	players := []model.Player{
		{Name: "Strelok", Faction: "loners", Status: model.PlayerStatusAlive},
		{Name: "Ghost", Faction: "bandits", Status: model.PlayerStatusAlive},
	}
	if err := db.Create(&players).Error; err != nil {
		return fmt.Errorf("failed to seed players: %w", err)
	}

	for _, key := range []string{
		store.VersionHazardZones,
		store.VersionRespawnZones,
		store.VersionArtifacts,
		store.VersionControlPoints,
	} {
		if err := gameStore.BumpCacheVersion(key); err != nil {
			return fmt.Errorf("failed to bump %s version: %w", key, err)
		}
	}

	Logger.Info().
		Int("artifactTypes", len(artifactTypes)).
		Int("zones", len(zones)).
		Int("controlPoints", len(points)).
		Int("players", len(players)).
		Msg("Seeded demo world")
	return nil
}
