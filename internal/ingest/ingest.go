package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pda-zone/engine/internal/cache"
	"github.com/pda-zone/engine/internal/errcode"
	"github.com/pda-zone/engine/internal/geo"
	"github.com/pda-zone/engine/internal/history"
	"github.com/pda-zone/engine/internal/model"
	"github.com/pda-zone/engine/internal/radiation"
	"github.com/pda-zone/engine/internal/store"
	"github.com/pda-zone/engine/internal/telemetry"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// QuestNotifier receives fire-and-forget gameplay notifications.
type QuestNotifier interface {
	PlayerRevived(playerID uint)
}

// Dependencies holds all dependencies for the ingest service.
type Dependencies struct {
	Store     *store.Store
	Radiation *radiation.Engine
	History   *history.Writer
	Influx    *telemetry.Manager
	Metrics   *telemetry.Metrics
	Quest     QuestNotifier
	Logger    zerolog.Logger
}

// Config is the gameplay tuning for report processing.
type Config struct {
	DetectionRadius        float64
	PickupRadius           float64
	ControlPointVisibility float64
}

// ZoneStatus is one hazard zone the player currently stands in.
type ZoneStatus struct {
	ZoneID uint    `json:"zoneId"`
	Name   string  `json:"name"`
	Level  float64 `json:"level"`
}

// PointStatus is one control point within visibility range.
type PointStatus struct {
	PointID        uint    `json:"pointId"`
	Name           string  `json:"name"`
	DistanceMeters float64 `json:"distanceMeters"`
	Faction        *string `json:"faction"`
	InCaptureRange bool    `json:"inCaptureRange"`
}

// ArtifactSighting is one artifact within detection range.
type ArtifactSighting struct {
	ArtifactID     uint    `json:"artifactId"`
	TypeName       string  `json:"typeName"`
	DistanceMeters float64 `json:"distanceMeters"`
	CanPickup      bool    `json:"canPickup"`
}

// ResurrectionStatus is the dwell progress of a dead player.
type ResurrectionStatus struct {
	ZoneID          uint    `json:"zoneId"`
	ProgressSeconds float64 `json:"progressSeconds"`
	RequiredSeconds float64 `json:"requiredSeconds"`
	Revived         bool    `json:"revived"`
}

// Report is the world snapshot returned for one accepted location report.
type Report struct {
	PlayerID      uint                `json:"playerId"`
	Status        string              `json:"status"`
	Radiation     *radiation.Result   `json:"radiation,omitempty"`
	Zones         []ZoneStatus        `json:"zones"`
	ControlPoints []PointStatus       `json:"controlPoints"`
	Artifacts     []ArtifactSighting  `json:"artifacts"`
	Resurrection  *ResurrectionStatus `json:"resurrection,omitempty"`
}

// Service orchestrates one location report end to end: persist the position,
// accrue radiation (or resurrection dwell for dead players), then build the
// nearby-world snapshot from the versioned caches.
type Service struct {
	deps Dependencies
	cfg  Config

	hazardZones   *cache.Versioned[[]model.HazardZone]
	respawnZones  *cache.Versioned[[]model.RespawnZone]
	controlPoints *cache.Versioned[[]model.ControlPoint]
	artifacts     *cache.Versioned[[]model.Artifact]
}

func NewService(deps Dependencies, cfg Config) *Service {
	return &Service{
		deps:          deps,
		cfg:           cfg,
		hazardZones:   cache.NewVersioned[[]model.HazardZone](),
		respawnZones:  cache.NewVersioned[[]model.RespawnZone](),
		controlPoints: cache.NewVersioned[[]model.ControlPoint](),
		artifacts:     cache.NewVersioned[[]model.Artifact](),
	}
}

// SetRadiation wires the radiation engine. The engine reads zones through
// this service's cache, so it is constructed after the service.
func (s *Service) SetRadiation(e *radiation.Engine) {
	s.deps.Radiation = e
}

// HazardZones returns the cached enabled hazard zones, refreshing when the
// shared version counter moved. Wired as the radiation engine's zone source.
func (s *Service) HazardZones() ([]model.HazardZone, error) {
	return s.hazardZones.Get(
		func() (uint64, error) { return s.deps.Store.CacheVersion(store.VersionHazardZones) },
		func() ([]model.HazardZone, error) { return s.deps.Store.EnabledHazardZones() },
	)
}

// RespawnZones returns the cached enabled respawn zones.
func (s *Service) RespawnZones() ([]model.RespawnZone, error) {
	return s.respawnZones.Get(
		func() (uint64, error) { return s.deps.Store.CacheVersion(store.VersionRespawnZones) },
		func() ([]model.RespawnZone, error) { return s.deps.Store.EnabledRespawnZones() },
	)
}

// ControlPoints returns the cached enabled control points.
func (s *Service) ControlPoints() ([]model.ControlPoint, error) {
	return s.controlPoints.Get(
		func() (uint64, error) { return s.deps.Store.CacheVersion(store.VersionControlPoints) },
		func() ([]model.ControlPoint, error) { return s.deps.Store.EnabledControlPoints() },
	)
}

// FieldArtifacts returns the cached hidden and visible artifacts.
func (s *Service) FieldArtifacts() ([]model.Artifact, error) {
	return s.artifacts.Get(
		func() (uint64, error) { return s.deps.Store.CacheVersion(store.VersionArtifacts) },
		func() ([]model.Artifact, error) { return s.deps.Store.FieldArtifacts() },
	)
}

// ReportLocation processes one GPS report.
func (s *Service) ReportLocation(
	ctx context.Context,
	playerID uint,
	lat, lng, accuracy float64,
	now time.Time,
) (*Report, error) {
	pos := geo.Point{Lat: lat, Lng: lng}
	if !pos.Valid() {
		return nil, errcode.Newf(errcode.BadRequest, "invalid coordinates %f,%f", lat, lng)
	}
	if accuracy < 0 {
		return nil, errcode.New(errcode.BadRequest, "negative accuracy")
	}

	player, err := s.deps.Store.GetPlayer(playerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errcode.New(errcode.NotFound, "player not found")
		}
		return nil, fmt.Errorf("failed to load player: %w", err)
	}

	prevLoc, err := s.deps.Store.GetLocation(playerID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load previous location: %w", err)
	}
	var prev *geo.Point
	if prevLoc != nil {
		prev = &geo.Point{Lat: prevLoc.Lat, Lng: prevLoc.Lng}
	}

	mercator, err := geo.Mercator(pos)
	if err != nil {
		return nil, errcode.New(errcode.BadRequest, "coordinates outside projectable range")
	}
	report := &Report{PlayerID: playerID, Status: player.Status}

	// The location upsert and the exposure accounting commit or roll back
	// together. A failed accrual must not advance the stored position: the
	// retry would see a zero-length segment and the traveled exposure would
	// silently vanish.
	err = s.deps.Store.WithTx(func(tx *store.Store) error {
		if err := tx.UpsertLocation(&model.PlayerLocation{
			PlayerID:   playerID,
			Lat:        lat,
			Lng:        lng,
			Accuracy:   accuracy,
			Location:   mercator,
			ReportedAt: now,
		}); err != nil {
			return fmt.Errorf("failed to upsert location: %w", err)
		}

		if player.Status == model.PlayerStatusDead {
			res, err := s.accrueResurrection(tx, player, prevLoc, pos, accuracy, now)
			if err != nil {
				return err
			}
			report.Resurrection = res
			if res != nil && res.Revived {
				report.Status = model.PlayerStatusAlive
			}
			return nil
		}

		rad, err := s.deps.Radiation.Accrue(ctx, tx, player, prev, pos, now)
		if err != nil {
			return err
		}
		report.Radiation = rad
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.deps.History != nil {
		s.deps.History.Record(model.LocationSample{
			Time:     now,
			PlayerID: playerID,
			Lat:      lat,
			Lng:      lng,
			Accuracy: accuracy,
		})
	}

	if report.Resurrection != nil && report.Resurrection.Revived {
		s.deps.Metrics.PlayerRevived(ctx)
		if s.deps.Quest != nil {
			go s.deps.Quest.PlayerRevived(playerID)
		}
	}

	if err := s.buildSnapshot(report, pos, accuracy, now); err != nil {
		return nil, err
	}

	s.deps.Metrics.ReportProcessed(ctx)
	if s.deps.Influx != nil {
		s.deps.Influx.WriteLocationReport(ctx, playerID, lat, lng, accuracy)
	}

	return report, nil
}

// accrueResurrection advances the dwell counter of a dead player standing in
// a respawn zone and revives once the required dwell is reached. Leaving the
// zone resets the counter. st is the transaction-bound store; revive metrics
// and quest notifications fire in the caller after the commit.
func (s *Service) accrueResurrection(
	st *store.Store,
	player *model.Player,
	prevLoc *model.PlayerLocation,
	pos geo.Point,
	accuracy float64,
	now time.Time,
) (*ResurrectionStatus, error) {
	zones, err := s.RespawnZones()
	if err != nil {
		return nil, fmt.Errorf("failed to load respawn zones: %w", err)
	}

	var zone *model.RespawnZone
	for i := range zones {
		center := geo.Point{Lat: zones[i].Lat, Lng: zones[i].Lng}
		if geo.WithinRadius(pos, center, zones[i].RadiusMeters, accuracy, geo.MechanicZone) {
			zone = &zones[i]
			break
		}
	}

	if zone == nil {
		if player.ResurrectionSeconds > 0 {
			if err := st.SetResurrectionProgress(player.ID, 0); err != nil {
				return nil, fmt.Errorf("failed to reset resurrection progress: %w", err)
			}
		}
		return nil, nil
	}

	var deltaT float64
	if prevLoc != nil {
		deltaT = now.Sub(prevLoc.ReportedAt).Seconds()
		if deltaT < 0 {
			deltaT = 0
		}
	}
	progress := player.ResurrectionSeconds + deltaT

	if progress >= zone.RequiredSeconds {
		revived, err := st.RevivePlayer(player.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to revive player: %w", err)
		}
		if revived {
			s.deps.Logger.Info().
				Uint("playerID", player.ID).
				Str("zone", zone.Name).
				Msg("Player revived")
			if err := st.AppendEvent("player_revived", &player.ID, map[string]interface{}{
				"zoneId": zone.ID,
			}); err != nil {
				return nil, fmt.Errorf("failed to record revive event: %w", err)
			}
		}
		return &ResurrectionStatus{
			ZoneID:          zone.ID,
			ProgressSeconds: zone.RequiredSeconds,
			RequiredSeconds: zone.RequiredSeconds,
			Revived:         revived,
		}, nil
	}

	if err := st.SetResurrectionProgress(player.ID, progress); err != nil {
		return nil, fmt.Errorf("failed to store resurrection progress: %w", err)
	}
	return &ResurrectionStatus{
		ZoneID:          zone.ID,
		ProgressSeconds: progress,
		RequiredSeconds: zone.RequiredSeconds,
	}, nil
}

// buildSnapshot fills the report with what the player can see from pos: the
// hazard zones they stand in, control points within visibility range and
// artifacts within detection range. Hidden artifacts entering detection range
// flip to visible.
func (s *Service) buildSnapshot(report *Report, pos geo.Point, accuracy float64, now time.Time) error {
	zones, err := s.HazardZones()
	if err != nil {
		return fmt.Errorf("failed to load hazard zones: %w", err)
	}
	report.Zones = []ZoneStatus{}
	for i := range zones {
		if !zones[i].ActiveAt(now) {
			continue
		}
		center := geo.Point{Lat: zones[i].Lat, Lng: zones[i].Lng}
		if geo.WithinRadius(pos, center, zones[i].RadiusMeters, accuracy, geo.MechanicZone) {
			report.Zones = append(report.Zones, ZoneStatus{
				ZoneID: zones[i].ID,
				Name:   zones[i].Name,
				Level:  zones[i].Level,
			})
		}
	}

	points, err := s.ControlPoints()
	if err != nil {
		return fmt.Errorf("failed to load control points: %w", err)
	}
	report.ControlPoints = []PointStatus{}
	for i := range points {
		center := geo.Point{Lat: points[i].Lat, Lng: points[i].Lng}
		distance := geo.DistanceMeters(pos, center)
		if distance > s.cfg.ControlPointVisibility {
			continue
		}
		captureLimit := geo.EffectiveRadius(points[i].RadiusMeters, accuracy, geo.MechanicControlPoint)
		report.ControlPoints = append(report.ControlPoints, PointStatus{
			PointID:        points[i].ID,
			Name:           points[i].Name,
			DistanceMeters: distance,
			Faction:        points[i].ControlledByFaction,
			InCaptureRange: distance <= captureLimit,
		})
	}

	artifacts, err := s.FieldArtifacts()
	if err != nil {
		return fmt.Errorf("failed to load artifacts: %w", err)
	}
	report.Artifacts = []ArtifactSighting{}
	revealed := false
	for i := range artifacts {
		a := &artifacts[i]
		if a.Expired(now) || !a.Spawned(now) {
			continue
		}
		center := geo.Point{Lat: a.Lat, Lng: a.Lng}
		distance := geo.DistanceMeters(pos, center)
		detectLimit := geo.EffectiveRadius(s.cfg.DetectionRadius, accuracy, geo.MechanicArtifactDetection)
		if distance > detectLimit {
			continue
		}

		if a.State == model.ArtifactStateHidden {
			if err := s.deps.Store.RevealArtifact(a.ID); err != nil {
				return fmt.Errorf("failed to reveal artifact: %w", err)
			}
			revealed = true
		}

		pickupLimit := geo.EffectiveRadius(s.cfg.PickupRadius, accuracy, geo.MechanicArtifactPickup)
		report.Artifacts = append(report.Artifacts, ArtifactSighting{
			ArtifactID:     a.ID,
			TypeName:       a.Type.Name,
			DistanceMeters: distance,
			CanPickup:      distance <= pickupLimit,
		})
	}
	if revealed {
		if err := s.deps.Store.BumpCacheVersion(store.VersionArtifacts); err != nil {
			return fmt.Errorf("failed to bump artifact cache version: %w", err)
		}
	}
	return nil
}
