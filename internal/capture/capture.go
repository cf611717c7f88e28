package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/pda-zone/engine/internal/errcode"
	"github.com/pda-zone/engine/internal/geo"
	"github.com/pda-zone/engine/internal/store"
	"github.com/pda-zone/engine/internal/telemetry"
	"github.com/rs/zerolog"
)

// Dependencies holds all dependencies for the capture engine.
type Dependencies struct {
	Store   *store.Store
	Logger  zerolog.Logger
	Metrics *telemetry.Metrics
	Influx  *telemetry.Manager
}

// Config is the gameplay tuning for control point capture.
type Config struct {
	CaptureDuration time.Duration
}

// Status describes a capture in progress.
type Status struct {
	PointID   uint
	StartedAt time.Time
	ReadyAt   time.Time
}

// Result describes a completed capture: the point now belongs to the
// capturing player and their faction.
type Result struct {
	PointID  uint
	PlayerID uint
	Faction  string
}

// Engine drives control point capture with the same claim discipline as
// artifact extraction: the start is a guarded update and only the recorded
// claimant can complete or cancel.
type Engine struct {
	deps Dependencies
	cfg  Config
}

func NewEngine(deps Dependencies, cfg Config) *Engine {
	return &Engine{deps: deps, cfg: cfg}
}

// Start begins a capture. First claimer wins; a concurrent starter gets
// BEING_EXTRACTED-style feedback via CONFLICT.
func (e *Engine) Start(
	ctx context.Context,
	playerID, pointID uint,
	pos geo.Point,
	accuracy float64,
	now time.Time,
) (*Status, error) {
	cp, err := e.deps.Store.GetControlPoint(pointID)
	if err != nil {
		return nil, errcode.New(errcode.NotFound, "control point not found")
	}
	if !cp.Enabled {
		return nil, errcode.New(errcode.NotAvailable, "control point is disabled")
	}

	if cp.CapturingBy != nil {
		if *cp.CapturingBy == playerID && cp.CapturingSince != nil {
			return &Status{
				PointID:   cp.ID,
				StartedAt: *cp.CapturingSince,
				ReadyAt:   cp.CapturingSince.Add(e.cfg.CaptureDuration),
			}, nil
		}
		return nil, errcode.New(errcode.Conflict, "control point is being captured by another player")
	}

	center := geo.Point{Lat: cp.Lat, Lng: cp.Lng}
	distance := geo.DistanceMeters(pos, center)
	limit := geo.EffectiveRadius(cp.RadiusMeters, accuracy, geo.MechanicControlPoint)
	if distance > limit {
		return nil, errcode.TooFarError(distance, limit)
	}

	won, err := e.deps.Store.ClaimControlPoint(pointID, playerID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to claim control point: %w", err)
	}
	if !won {
		e.deps.Metrics.ClaimLost(ctx, "control_point")
		return nil, errcode.New(errcode.Conflict, "control point was claimed concurrently")
	}
	e.deps.Metrics.ClaimWon(ctx, "control_point")

	e.deps.Logger.Info().
		Uint("playerID", playerID).
		Uint("pointID", pointID).
		Msg("Capture started")

	return &Status{
		PointID:   pointID,
		StartedAt: now,
		ReadyAt:   now.Add(e.cfg.CaptureDuration),
	}, nil
}

// Complete finishes a capture after the hold time, transferring the point to
// the player's faction and clearing the transient claim in one statement.
func (e *Engine) Complete(ctx context.Context, playerID, pointID uint, now time.Time) (*Result, error) {
	cp, err := e.deps.Store.GetControlPoint(pointID)
	if err != nil {
		return nil, errcode.New(errcode.NotFound, "control point not found")
	}

	if cp.CapturingBy == nil || *cp.CapturingBy != playerID || cp.CapturingSince == nil {
		return nil, errcode.New(errcode.NotExtracting, "no capture in progress for this player")
	}

	elapsed := now.Sub(*cp.CapturingSince)
	if elapsed < e.cfg.CaptureDuration {
		return nil, errcode.NotReadyError(errcode.TooEarly, e.cfg.CaptureDuration-elapsed)
	}

	player, err := e.deps.Store.GetPlayer(playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load player: %w", err)
	}

	var result *Result
	err = e.deps.Store.WithTx(func(tx *store.Store) error {
		done, err := tx.FinishControlPoint(pointID, playerID, player.Faction)
		if err != nil {
			return fmt.Errorf("failed to finish capture: %w", err)
		}
		if !done {
			return errcode.New(errcode.Conflict, "capture state changed concurrently")
		}

		if err := tx.BumpCacheVersion(store.VersionControlPoints); err != nil {
			return fmt.Errorf("failed to bump control point cache version: %w", err)
		}

		result = &Result{PointID: pointID, PlayerID: playerID, Faction: player.Faction}
		return tx.AppendEvent("control_point_captured", &playerID, map[string]interface{}{
			"pointId": pointID,
			"faction": player.Faction,
		})
	})
	if err != nil {
		return nil, err
	}

	e.deps.Metrics.CaptureCompleted(ctx)
	if e.deps.Influx != nil {
		e.deps.Influx.WriteCaptureEvent(ctx, playerID, pointID, "captured", player.Faction)
	}
	e.deps.Logger.Info().
		Uint("playerID", playerID).
		Uint("pointID", pointID).
		Str("faction", player.Faction).
		Msg("Control point captured")

	return result, nil
}

// Cancel abandons a capture.
func (e *Engine) Cancel(ctx context.Context, playerID, pointID uint) error {
	released, err := e.deps.Store.ReleaseControlPoint(pointID, playerID)
	if err != nil {
		return fmt.Errorf("failed to cancel capture: %w", err)
	}
	if !released {
		return errcode.New(errcode.NotExtracting, "no capture in progress for this player")
	}

	e.deps.Logger.Info().
		Uint("playerID", playerID).
		Uint("pointID", pointID).
		Msg("Capture cancelled")
	return nil
}
