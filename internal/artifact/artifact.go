package artifact

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/pda-zone/engine/internal/errcode"
	"github.com/pda-zone/engine/internal/geo"
	"github.com/pda-zone/engine/internal/model"
	"github.com/pda-zone/engine/internal/store"
	"github.com/pda-zone/engine/internal/telemetry"
	"github.com/rs/zerolog"
)

// QuestNotifier receives fire-and-forget gameplay notifications.
type QuestNotifier interface {
	ArtifactExtracted(playerID, artifactTypeID uint)
}

// Dependencies holds all dependencies for the artifact engine.
type Dependencies struct {
	Store   *store.Store
	Logger  zerolog.Logger
	Metrics *telemetry.Metrics
	Influx  *telemetry.Manager
	Quest   QuestNotifier
	Rand    *rand.Rand
}

// Config is the gameplay tuning for the artifact lifecycle.
type Config struct {
	ExtractionDuration   time.Duration
	PickupRadius         float64
	PickupReputation     int
	SellReputationFactor float64
	RespawnDelay         time.Duration
	RespawnRadius        float64
}

// ClaimStatus describes an extraction in progress.
type ClaimStatus struct {
	ArtifactID uint
	StartedAt  time.Time
	ReadyAt    time.Time
}

// ExtractResult describes a completed extraction.
type ExtractResult struct {
	ArtifactID     uint
	ArtifactTypeID uint
	TypeName       string
	Reputation     int
	RespawnAt      *time.Time
}

// Engine drives the artifact lifecycle. Every state transition that two
// players could race goes through the store's guarded updates; the engine
// itself never writes a transition it read a moment earlier.
type Engine struct {
	deps Dependencies
	cfg  Config

	rngMu sync.Mutex
}

func NewEngine(deps Dependencies, cfg Config) *Engine {
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{deps: deps, cfg: cfg}
}

// StartClaim begins an extraction. Preconditions are checked against a fresh
// read, then restated in the guarded update; losing the race after the reads
// surfaces as CONFLICT.
func (e *Engine) StartClaim(
	ctx context.Context,
	playerID, artifactID uint,
	pos geo.Point,
	accuracy float64,
	now time.Time,
) (*ClaimStatus, error) {
	a, err := e.deps.Store.GetArtifact(artifactID)
	if err != nil {
		return nil, errcode.New(errcode.NotFound, "artifact not found")
	}

	if a.Expired(now) {
		return nil, errcode.New(errcode.Expired, "artifact has expired")
	}
	if !a.Spawned(now) {
		return nil, errcode.New(errcode.NotSpawned, "artifact has not spawned yet")
	}
	if a.OwnerID != nil {
		return nil, errcode.New(errcode.AlreadyTaken, "artifact already extracted")
	}
	if a.ExtractingBy != nil {
		if *a.ExtractingBy == playerID && a.ExtractingSince != nil {
			// Duplicate start from the same player, report the running claim.
			return &ClaimStatus{
				ArtifactID: a.ID,
				StartedAt:  *a.ExtractingSince,
				ReadyAt:    a.ExtractingSince.Add(e.cfg.ExtractionDuration),
			}, nil
		}
		return nil, errcode.New(errcode.BeingExtracted, "artifact is being extracted by another player")
	}
	if a.State != model.ArtifactStateHidden && a.State != model.ArtifactStateVisible {
		return nil, errcode.Newf(errcode.NotAvailable, "artifact is %s", a.State)
	}

	center := geo.Point{Lat: a.Lat, Lng: a.Lng}
	distance := geo.DistanceMeters(pos, center)
	limit := geo.EffectiveRadius(e.cfg.PickupRadius, accuracy, geo.MechanicArtifactPickup)
	if distance > limit {
		return nil, errcode.TooFarError(distance, limit)
	}

	won, err := e.deps.Store.ClaimArtifact(artifactID, playerID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to claim artifact: %w", err)
	}
	if !won {
		e.deps.Metrics.ClaimLost(ctx, "artifact")
		return nil, errcode.New(errcode.Conflict, "artifact was claimed concurrently")
	}
	e.deps.Metrics.ClaimWon(ctx, "artifact")

	e.deps.Logger.Info().
		Uint("playerID", playerID).
		Uint("artifactID", artifactID).
		Msg("Extraction started")

	return &ClaimStatus{
		ArtifactID: artifactID,
		StartedAt:  now,
		ReadyAt:    now.Add(e.cfg.ExtractionDuration),
	}, nil
}

// CompleteClaim finishes an extraction after the hold time. The distance is
// re-checked: a player who walked away mid-extraction gets TOO_FAR and the
// artifact reverts to visible so others can see what they found.
func (e *Engine) CompleteClaim(
	ctx context.Context,
	playerID, artifactID uint,
	pos geo.Point,
	accuracy float64,
	now time.Time,
) (*ExtractResult, error) {
	a, err := e.deps.Store.GetArtifact(artifactID)
	if err != nil {
		return nil, errcode.New(errcode.NotFound, "artifact not found")
	}

	if a.ExtractingBy == nil || *a.ExtractingBy != playerID || a.ExtractingSince == nil {
		return nil, errcode.New(errcode.NotExtracting, "no extraction in progress for this player")
	}

	elapsed := now.Sub(*a.ExtractingSince)
	if elapsed < e.cfg.ExtractionDuration {
		return nil, errcode.NotReadyError(errcode.ExtractionNotComplete, e.cfg.ExtractionDuration-elapsed)
	}

	center := geo.Point{Lat: a.Lat, Lng: a.Lng}
	distance := geo.DistanceMeters(pos, center)
	limit := geo.EffectiveRadius(e.cfg.PickupRadius, accuracy, geo.MechanicArtifactPickup)
	if distance > limit {
		if _, revErr := e.deps.Store.ReleaseArtifact(artifactID, playerID, model.ArtifactStateVisible); revErr != nil {
			return nil, fmt.Errorf("failed to revert artifact after distance failure: %w", revErr)
		}
		tooFar := errcode.TooFarError(distance, limit)
		tooFar.Reverted = true
		return nil, tooFar
	}

	var respawnAt *time.Time
	err = e.deps.Store.WithTx(func(tx *store.Store) error {
		done, err := tx.FinishArtifact(artifactID, playerID)
		if err != nil {
			return fmt.Errorf("failed to finish artifact: %w", err)
		}
		if !done {
			return errcode.New(errcode.Conflict, "extraction state changed concurrently")
		}

		if err := tx.AddInventoryItem(playerID, a.TypeID, now); err != nil {
			return fmt.Errorf("failed to add inventory item: %w", err)
		}
		if err := tx.AddPickupStats(playerID, e.cfg.PickupReputation); err != nil {
			return fmt.Errorf("failed to update pickup stats: %w", err)
		}

		if a.RespawnEnabled {
			at := now.Add(e.respawnDelay(a))
			anchor := geo.Point{Lat: a.AnchorLat, Lng: a.AnchorLng}
			next := e.scatter(anchor, e.respawnRadius(a))
			if err := tx.ScheduleRespawn(artifactID, next.Lat, next.Lng, at); err != nil {
				return fmt.Errorf("failed to schedule respawn: %w", err)
			}
			respawnAt = &at
		}

		if err := tx.BumpCacheVersion(store.VersionArtifacts); err != nil {
			return fmt.Errorf("failed to bump artifact cache version: %w", err)
		}

		return tx.AppendEvent("artifact_extracted", &playerID, map[string]interface{}{
			"artifactId": artifactID,
			"typeId":     a.TypeID,
		})
	})
	if err != nil {
		return nil, err
	}

	e.deps.Logger.Info().
		Uint("playerID", playerID).
		Uint("artifactID", artifactID).
		Str("type", a.Type.Name).
		Msg("Artifact extracted")

	if e.deps.Quest != nil {
		go e.deps.Quest.ArtifactExtracted(playerID, a.TypeID)
	}
	if e.deps.Influx != nil {
		e.deps.Influx.WriteArtifactEvent(ctx, playerID, artifactID, "extracted")
	}

	return &ExtractResult{
		ArtifactID:     artifactID,
		ArtifactTypeID: a.TypeID,
		TypeName:       a.Type.Name,
		Reputation:     e.cfg.PickupReputation,
		RespawnAt:      respawnAt,
	}, nil
}

// CancelClaim abandons an extraction and hides the artifact again.
func (e *Engine) CancelClaim(ctx context.Context, playerID, artifactID uint) error {
	released, err := e.deps.Store.ReleaseArtifact(artifactID, playerID, model.ArtifactStateHidden)
	if err != nil {
		return fmt.Errorf("failed to cancel extraction: %w", err)
	}
	if !released {
		return errcode.New(errcode.NotExtracting, "no extraction in progress for this player")
	}

	e.deps.Logger.Info().
		Uint("playerID", playerID).
		Uint("artifactID", artifactID).
		Msg("Extraction cancelled")
	return nil
}

// Sell trades an inventory item for rubles. Reputation raises the price:
// base * (1 + reputation/100 * factor).
func (e *Engine) Sell(ctx context.Context, playerID, itemID uint) (int, error) {
	item, err := e.deps.Store.GetInventoryItem(itemID)
	if err != nil {
		return 0, errcode.New(errcode.NotFound, "inventory item not found")
	}
	if item.PlayerID != playerID {
		return 0, errcode.New(errcode.NotFound, "inventory item not found")
	}

	player, err := e.deps.Store.GetPlayer(playerID)
	if err != nil {
		return 0, fmt.Errorf("failed to load player: %w", err)
	}

	price := int(float64(item.ArtifactType.BasePrice) *
		(1 + float64(player.Reputation)/100*e.cfg.SellReputationFactor))

	err = e.deps.Store.WithTx(func(tx *store.Store) error {
		deleted, err := tx.DeleteInventoryItem(itemID, playerID)
		if err != nil {
			return fmt.Errorf("failed to remove inventory item: %w", err)
		}
		if !deleted {
			return errcode.New(errcode.Conflict, "inventory item already gone")
		}
		if err := tx.AddRubles(playerID, price); err != nil {
			return fmt.Errorf("failed to credit sale: %w", err)
		}
		return tx.AppendEvent("artifact_sold", &playerID, map[string]interface{}{
			"itemId": itemID,
			"typeId": item.ArtifactTypeID,
			"price":  price,
		})
	})
	if err != nil {
		return 0, err
	}

	e.deps.Logger.Info().
		Uint("playerID", playerID).
		Uint("itemID", itemID).
		Int("price", price).
		Msg("Artifact sold")
	return price, nil
}

// Drop discards an inventory item without payment.
func (e *Engine) Drop(ctx context.Context, playerID, itemID uint) error {
	item, err := e.deps.Store.GetInventoryItem(itemID)
	if err != nil || item.PlayerID != playerID {
		return errcode.New(errcode.NotFound, "inventory item not found")
	}

	return e.deps.Store.WithTx(func(tx *store.Store) error {
		deleted, err := tx.DeleteInventoryItem(itemID, playerID)
		if err != nil {
			return fmt.Errorf("failed to remove inventory item: %w", err)
		}
		if !deleted {
			return errcode.New(errcode.Conflict, "inventory item already gone")
		}
		return tx.AppendEvent("artifact_dropped", &playerID, map[string]interface{}{
			"itemId": itemID,
			"typeId": item.ArtifactTypeID,
		})
	})
}

// SweepRespawns returns due respawning artifacts to the field and reports
// how many were activated.
func (e *Engine) SweepRespawns(ctx context.Context, now time.Time) (int, error) {
	n, err := e.deps.Store.ActivateDueRespawns(now)
	if err != nil {
		return 0, fmt.Errorf("failed to activate respawns: %w", err)
	}
	if n > 0 {
		if err := e.deps.Store.BumpCacheVersion(store.VersionArtifacts); err != nil {
			return n, fmt.Errorf("failed to bump artifact cache version: %w", err)
		}
		e.deps.Metrics.RespawnsActivated(ctx, n)
		e.deps.Logger.Info().Int("count", n).Msg("Respawning artifacts returned to the field")
	}
	return n, nil
}

func (e *Engine) respawnDelay(a *model.Artifact) time.Duration {
	if a.RespawnDelayMinutes > 0 {
		return time.Duration(a.RespawnDelayMinutes) * time.Minute
	}
	return e.cfg.RespawnDelay
}

func (e *Engine) respawnRadius(a *model.Artifact) float64 {
	if a.RespawnRadiusMeters > 0 {
		return a.RespawnRadiusMeters
	}
	return e.cfg.RespawnRadius
}

func (e *Engine) scatter(anchor geo.Point, radius float64) geo.Point {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return geo.RandomPointInDisk(anchor, radius, e.deps.Rand)
}
