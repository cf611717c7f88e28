package radiation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pda-zone/engine/internal/geo"
	"github.com/pda-zone/engine/internal/model"
	"github.com/pda-zone/engine/internal/store"
	"github.com/pda-zone/engine/internal/telemetry"
	"github.com/rs/zerolog"
)

// Dependencies holds all dependencies for the radiation engine. The store is
// not among them: Accrue persists through the caller's transaction-bound
// store so the dose lands atomically with the location update.
type Dependencies struct {
	Zones   func() ([]model.HazardZone, error)
	Logger  zerolog.Logger
	Metrics *telemetry.Metrics
	Influx  *telemetry.Manager
}

// Config is the gameplay tuning for dose accrual.
type Config struct {
	MaxRadiation    float64
	ResistCap       float64
	DoseDivisor     float64
	OfflineSpeedMps float64
}

// Result is one applied accrual.
type Result struct {
	Current  float64
	Delta    float64
	Resist   float64
	ZoneID   *uint
	ZoneName string
	Applied  bool
}

// Engine accrues radiation dose along the movement segment between two
// consecutive reports. Attribution is first-entered: the zone recorded on the
// player keeps receiving the dose until the path no longer touches it, only
// then does the scan (in stable id order) pick a new zone.
type Engine struct {
	deps Dependencies
	cfg  Config
}

func NewEngine(deps Dependencies, cfg Config) *Engine {
	return &Engine{deps: deps, cfg: cfg}
}

// Accrue computes and persists the dose for the interval between the
// player's last calc and now, moving prev -> cur. st is the (possibly
// transaction-bound) store to persist through. A nil prev means there is no
// stored position and the interval is treated as stationary at cur.
//
// The persist is a timestamp-guarded update: if a concurrent report already
// advanced the calc time, this result is discarded and Applied is false.
func (e *Engine) Accrue(
	ctx context.Context,
	st *store.Store,
	player *model.Player,
	prev *geo.Point,
	cur geo.Point,
	now time.Time,
) (*Result, error) {
	zones, err := e.deps.Zones()
	if err != nil {
		// Fail closed: no dose math on an unknown zone set.
		return nil, fmt.Errorf("failed to load hazard zones: %w", err)
	}

	// First report: establish the baseline, no dose for the unknown past.
	if player.LastRadiationCalcAt == nil {
		zoneID := e.zoneContaining(zones, cur, now)
		resist, err := st.PlayerResist(player.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load player resist: %w", err)
		}
		applied, err := st.ApplyRadiation(player.ID, nil, player.Radiation, zoneID, now)
		if err != nil {
			return nil, fmt.Errorf("failed to init radiation baseline: %w", err)
		}
		return &Result{
			Current: player.Radiation,
			Resist:  math.Min(resist, e.cfg.ResistCap),
			ZoneID:  zoneID,
			Applied: applied,
		}, nil
	}

	deltaT := now.Sub(*player.LastRadiationCalcAt).Seconds()
	if deltaT <= 0 {
		// Duplicate or out-of-order report, nothing to accrue.
		return &Result{Current: player.Radiation, ZoneID: player.RadiationZoneID}, nil
	}

	from := cur
	if prev != nil {
		from = *prev
		// Offline compensation: if the player was away long enough that the
		// measured interval could not cover the traveled distance at walking
		// speed, stretch the interval to the walk time.
		if e.cfg.OfflineSpeedMps > 0 {
			walkSeconds := geo.DistanceMeters(from, cur) / e.cfg.OfflineSpeedMps
			deltaT = math.Max(deltaT, walkSeconds)
		}
	}

	zone, timeInside := e.attributeZone(zones, player.RadiationZoneID, from, cur, now, deltaT)

	resist, err := st.PlayerResist(player.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load player resist: %w", err)
	}
	resist = math.Min(resist, e.cfg.ResistCap)

	var dose float64
	var zoneID *uint
	var zoneName string
	if zone != nil && timeInside > 0 {
		dose = (zone.Level / e.cfg.DoseDivisor) * (1 - resist/100) * timeInside
		id := zone.ID
		zoneID = &id
		zoneName = zone.Name
	}

	current := math.Max(0, math.Min(e.cfg.MaxRadiation, player.Radiation+dose))

	applied, err := st.ApplyRadiation(player.ID, player.LastRadiationCalcAt, current, zoneID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to persist radiation: %w", err)
	}
	if !applied {
		e.deps.Logger.Debug().Uint("playerID", player.ID).
			Msg("Radiation write lost to a concurrent report, discarding")
		return &Result{Current: player.Radiation, ZoneID: player.RadiationZoneID}, nil
	}

	if dose > 0 {
		e.deps.Metrics.DoseApplied(ctx, dose)
		if e.deps.Influx != nil {
			e.deps.Influx.WriteRadiationDose(ctx, player.ID, zoneName, dose, current)
		}
		e.deps.Logger.Debug().
			Uint("playerID", player.ID).
			Str("zone", zoneName).
			Float64("dose", dose).
			Float64("current", current).
			Msg("Radiation dose applied")
	}

	return &Result{
		Current:  current,
		Delta:    current - player.Radiation,
		Resist:   resist,
		ZoneID:   zoneID,
		ZoneName: zoneName,
		Applied:  true,
	}, nil
}

// attributeZone resolves which zone receives the interval's dose. The stored
// zone stays sticky while the path still overlaps it; once the overlap drops
// to zero the scan restarts over all active zones in id order.
func (e *Engine) attributeZone(
	zones []model.HazardZone,
	stickyID *uint,
	from, to geo.Point,
	now time.Time,
	deltaT float64,
) (*model.HazardZone, float64) {
	if stickyID != nil {
		for i := range zones {
			if zones[i].ID != *stickyID || !zones[i].ActiveAt(now) {
				continue
			}
			center := geo.Point{Lat: zones[i].Lat, Lng: zones[i].Lng}
			inside := geo.TimeInCircle(from, to, center, zones[i].RadiusMeters, deltaT)
			if inside > 0 {
				return &zones[i], inside
			}
			break
		}
	}

	for i := range zones {
		if !zones[i].ActiveAt(now) {
			continue
		}
		center := geo.Point{Lat: zones[i].Lat, Lng: zones[i].Lng}
		inside := geo.TimeInCircle(from, to, center, zones[i].RadiusMeters, deltaT)
		if inside > 0 {
			return &zones[i], inside
		}
	}
	return nil, 0
}

// zoneContaining returns the id of the first active zone containing p.
func (e *Engine) zoneContaining(zones []model.HazardZone, p geo.Point, now time.Time) *uint {
	for i := range zones {
		if !zones[i].ActiveAt(now) {
			continue
		}
		center := geo.Point{Lat: zones[i].Lat, Lng: zones[i].Lng}
		if geo.PointInCircle(p, center, zones[i].RadiusMeters) {
			id := zones[i].ID
			return &id
		}
	}
	return nil
}
