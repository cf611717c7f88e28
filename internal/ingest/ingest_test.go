package ingest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pda-zone/engine/internal/errcode"
	"github.com/pda-zone/engine/internal/model"
	"github.com/pda-zone/engine/internal/radiation"
	"github.com/pda-zone/engine/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBCounter int64

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()

	dsn := fmt.Sprintf("file:ingesttest%d?mode=memory&cache=shared",
		atomic.AddInt64(&testDBCounter, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.DatabaseModels...))

	s := store.New(db)
	svc := NewService(Dependencies{
		Store:  s,
		Logger: zerolog.Nop(),
	}, Config{
		DetectionRadius:        15,
		PickupRadius:           2,
		ControlPointVisibility: 50,
	})
	svc.SetRadiation(radiation.NewEngine(radiation.Dependencies{
		Zones:  svc.HazardZones,
		Logger: zerolog.Nop(),
	}, radiation.Config{
		MaxRadiation:    100,
		ResistCap:       80,
		DoseDivisor:     300,
		OfflineSpeedMps: 1.0,
	}))
	return svc, s
}

func createPlayer(t *testing.T, s *store.Store, status string) *model.Player {
	t.Helper()
	p := &model.Player{Name: "stalker", Faction: "loners", Status: status}
	require.NoError(t, s.DB().Create(p).Error)
	return p
}

var ctxBg = context.Background()

// Roughly 1 m and 55 m north of 50.0,30.0.
const (
	baseLat = 50.0
	baseLng = 30.0
	farLat  = 50.0005
)

func TestReport_InvalidCoordinates(t *testing.T) {
	svc, s := newTestService(t)
	p := createPlayer(t, s, model.PlayerStatusAlive)

	_, err := svc.ReportLocation(ctxBg, p.ID, 91.0, baseLng, 5, time.Now().UTC())
	require.Error(t, err)
	assert.Equal(t, errcode.BadRequest, errcode.CodeOf(err))

	_, err = svc.ReportLocation(ctxBg, p.ID, baseLat, baseLng, -1, time.Now().UTC())
	require.Error(t, err)
	assert.Equal(t, errcode.BadRequest, errcode.CodeOf(err))
}

func TestReport_UnknownPlayer(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ReportLocation(ctxBg, 999, baseLat, baseLng, 5, time.Now().UTC())
	require.Error(t, err)
	assert.Equal(t, errcode.NotFound, errcode.CodeOf(err))
}

func TestReport_UpsertsLocationAndBaseline(t *testing.T) {
	svc, s := newTestService(t)
	p := createPlayer(t, s, model.PlayerStatusAlive)
	now := time.Now().UTC()

	report, err := svc.ReportLocation(ctxBg, p.ID, baseLat, baseLng, 5, now)
	require.NoError(t, err)
	require.NotNil(t, report.Radiation)
	assert.Zero(t, report.Radiation.Delta)

	loc, err := s.GetLocation(p.ID)
	require.NoError(t, err)
	assert.Equal(t, baseLat, loc.Lat)
	assert.Equal(t, baseLng, loc.Lng)

	got, err := s.GetPlayer(p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRadiationCalcAt)
}

func TestReport_FailedAccrualKeepsPreviousLocation(t *testing.T) {
	svc, s := newTestService(t)
	p := createPlayer(t, s, model.PlayerStatusAlive)
	now := time.Now().UTC()

	_, err := svc.ReportLocation(ctxBg, p.ID, baseLat, baseLng, 5, now)
	require.NoError(t, err)

	// Zone lookup failures fail the whole report; the stored position must
	// roll back with it so the traveled segment is re-accrued on retry.
	svc.SetRadiation(radiation.NewEngine(radiation.Dependencies{
		Zones:  func() ([]model.HazardZone, error) { return nil, fmt.Errorf("cache down") },
		Logger: zerolog.Nop(),
	}, radiation.Config{
		MaxRadiation:    100,
		ResistCap:       80,
		DoseDivisor:     300,
		OfflineSpeedMps: 1.0,
	}))

	_, err = svc.ReportLocation(ctxBg, p.ID, farLat, baseLng, 5, now.Add(60*time.Second))
	require.Error(t, err)

	loc, err := s.GetLocation(p.ID)
	require.NoError(t, err)
	assert.Equal(t, baseLat, loc.Lat)
}

func TestReport_AccruesDoseInsideZone(t *testing.T) {
	svc, s := newTestService(t)
	p := createPlayer(t, s, model.PlayerStatusAlive)
	require.NoError(t, s.DB().Create(&model.HazardZone{
		Name: "Burner", Lat: baseLat, Lng: baseLng, RadiusMeters: 100, Level: 60, Enabled: true,
	}).Error)
	now := time.Now().UTC()

	_, err := svc.ReportLocation(ctxBg, p.ID, baseLat, baseLng, 5, now)
	require.NoError(t, err)

	report, err := svc.ReportLocation(ctxBg, p.ID, baseLat, baseLng, 5, now.Add(300*time.Second))
	require.NoError(t, err)
	require.NotNil(t, report.Radiation)
	assert.InDelta(t, 60, report.Radiation.Current, 0.01)

	require.Len(t, report.Zones, 1)
	assert.Equal(t, "Burner", report.Zones[0].Name)
}

func TestReport_ZoneMembershipOutside(t *testing.T) {
	svc, s := newTestService(t)
	p := createPlayer(t, s, model.PlayerStatusAlive)
	require.NoError(t, s.DB().Create(&model.HazardZone{
		Name: "Burner", Lat: baseLat, Lng: baseLng, RadiusMeters: 10, Level: 60, Enabled: true,
	}).Error)

	report, err := svc.ReportLocation(ctxBg, p.ID, farLat, baseLng, 5, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, report.Zones)
}

func TestReport_ControlPointVisibility(t *testing.T) {
	svc, s := newTestService(t)
	p := createPlayer(t, s, model.PlayerStatusAlive)
	require.NoError(t, s.DB().Create(&model.ControlPoint{
		Name: "Sawmill", Lat: baseLat, Lng: baseLng, RadiusMeters: 10, Enabled: true,
	}).Error)

	// 1 m away: visible and inside capture range.
	report, err := svc.ReportLocation(ctxBg, p.ID, 50.000009, baseLng, 5, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, report.ControlPoints, 1)
	assert.True(t, report.ControlPoints[0].InCaptureRange)

	// 55 m away: beyond the 50 m visibility cutoff.
	report, err = svc.ReportLocation(ctxBg, p.ID, farLat, baseLng, 5, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, report.ControlPoints)
}

func TestReport_DetectionRevealsHiddenArtifact(t *testing.T) {
	svc, s := newTestService(t)
	p := createPlayer(t, s, model.PlayerStatusAlive)
	at := &model.ArtifactType{Name: "Medusa", BasePrice: 1000}
	require.NoError(t, s.DB().Create(at).Error)
	a := &model.Artifact{TypeID: at.ID, State: model.ArtifactStateHidden, Lat: baseLat, Lng: baseLng}
	require.NoError(t, s.DB().Create(a).Error)

	report, err := svc.ReportLocation(ctxBg, p.ID, 50.000009, baseLng, 5, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, report.Artifacts, 1)
	assert.Equal(t, "Medusa", report.Artifacts[0].TypeName)
	assert.True(t, report.Artifacts[0].CanPickup)

	got, err := s.GetArtifact(a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ArtifactStateVisible, got.State)
}

func TestReport_ArtifactBeyondDetection(t *testing.T) {
	svc, s := newTestService(t)
	p := createPlayer(t, s, model.PlayerStatusAlive)
	at := &model.ArtifactType{Name: "Medusa"}
	require.NoError(t, s.DB().Create(at).Error)
	a := &model.Artifact{TypeID: at.ID, State: model.ArtifactStateHidden, Lat: baseLat, Lng: baseLng}
	require.NoError(t, s.DB().Create(a).Error)

	// 55 m away with accuracy 5: detection limit is 15 + 5 = 20 m.
	report, err := svc.ReportLocation(ctxBg, p.ID, farLat, baseLng, 5, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, report.Artifacts)

	got, err := s.GetArtifact(a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ArtifactStateHidden, got.State)
}

func TestReport_DetectionOutsidePickupRange(t *testing.T) {
	svc, s := newTestService(t)
	p := createPlayer(t, s, model.PlayerStatusAlive)
	at := &model.ArtifactType{Name: "Medusa"}
	require.NoError(t, s.DB().Create(at).Error)
	require.NoError(t, s.DB().Create(&model.Artifact{
		TypeID: at.ID, State: model.ArtifactStateVisible, Lat: baseLat, Lng: baseLng,
	}).Error)

	// Roughly 11 m away: inside detection, outside the 2 + 5 m pickup limit.
	report, err := svc.ReportLocation(ctxBg, p.ID, 50.0001, baseLng, 5, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, report.Artifacts, 1)
	assert.False(t, report.Artifacts[0].CanPickup)
}

func TestReport_DeadPlayerAccumulatesResurrection(t *testing.T) {
	svc, s := newTestService(t)
	p := createPlayer(t, s, model.PlayerStatusDead)
	require.NoError(t, s.DB().Create(&model.RespawnZone{
		Name: "Camp", Lat: baseLat, Lng: baseLng, RadiusMeters: 30, RequiredSeconds: 60, Enabled: true,
	}).Error)
	now := time.Now().UTC()

	report, err := svc.ReportLocation(ctxBg, p.ID, baseLat, baseLng, 5, now)
	require.NoError(t, err)
	require.NotNil(t, report.Resurrection)
	assert.Zero(t, report.Resurrection.ProgressSeconds)
	assert.Nil(t, report.Radiation)

	report, err = svc.ReportLocation(ctxBg, p.ID, baseLat, baseLng, 5, now.Add(30*time.Second))
	require.NoError(t, err)
	require.NotNil(t, report.Resurrection)
	assert.InDelta(t, 30, report.Resurrection.ProgressSeconds, 0.1)
	assert.False(t, report.Resurrection.Revived)

	report, err = svc.ReportLocation(ctxBg, p.ID, baseLat, baseLng, 5, now.Add(70*time.Second))
	require.NoError(t, err)
	require.NotNil(t, report.Resurrection)
	assert.True(t, report.Resurrection.Revived)
	assert.Equal(t, model.PlayerStatusAlive, report.Status)

	got, err := s.GetPlayer(p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PlayerStatusAlive, got.Status)
	assert.Zero(t, got.Radiation)
	assert.Zero(t, got.ResurrectionSeconds)
}

func TestReport_LeavingRespawnZoneResetsProgress(t *testing.T) {
	svc, s := newTestService(t)
	p := createPlayer(t, s, model.PlayerStatusDead)
	require.NoError(t, s.DB().Create(&model.RespawnZone{
		Name: "Camp", Lat: baseLat, Lng: baseLng, RadiusMeters: 30, RequiredSeconds: 60, Enabled: true,
	}).Error)
	now := time.Now().UTC()

	_, err := svc.ReportLocation(ctxBg, p.ID, baseLat, baseLng, 5, now)
	require.NoError(t, err)
	_, err = svc.ReportLocation(ctxBg, p.ID, baseLat, baseLng, 5, now.Add(30*time.Second))
	require.NoError(t, err)

	report, err := svc.ReportLocation(ctxBg, p.ID, farLat, baseLng, 5, now.Add(40*time.Second))
	require.NoError(t, err)
	assert.Nil(t, report.Resurrection)

	got, err := s.GetPlayer(p.ID)
	require.NoError(t, err)
	assert.Zero(t, got.ResurrectionSeconds)
	assert.Equal(t, model.PlayerStatusDead, got.Status)
}

func TestReport_CacheRefreshesAfterVersionBump(t *testing.T) {
	svc, s := newTestService(t)
	p := createPlayer(t, s, model.PlayerStatusAlive)

	report, err := svc.ReportLocation(ctxBg, p.ID, baseLat, baseLng, 5, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, report.ControlPoints)

	require.NoError(t, s.DB().Create(&model.ControlPoint{
		Name: "Sawmill", Lat: baseLat, Lng: baseLng, RadiusMeters: 10, Enabled: true,
	}).Error)
	require.NoError(t, s.BumpCacheVersion(store.VersionControlPoints))

	report, err = svc.ReportLocation(ctxBg, p.ID, baseLat, baseLng, 5, time.Now().UTC())
	require.NoError(t, err)
	assert.Len(t, report.ControlPoints, 1)
}
