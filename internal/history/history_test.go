package history

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pda-zone/engine/internal/model"
	"github.com/pda-zone/engine/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBCounter int64

func newTestWriter(t *testing.T) (*Writer, *store.Store) {
	t.Helper()

	dsn := fmt.Sprintf("file:histtest%d?mode=memory&cache=shared",
		atomic.AddInt64(&testDBCounter, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.LocationSample{}))

	s := store.New(db)
	w := NewWriter(Dependencies{Store: s, Logger: zerolog.Nop()}, time.Hour)
	return w, s
}

func TestFlush_WritesBatch(t *testing.T) {
	w, s := newTestWriter(t)
	now := time.Now().UTC()

	for i := 0; i < 10; i++ {
		w.Record(model.LocationSample{
			Time:     now,
			PlayerID: uint(i + 1),
			Lat:      50.0,
			Lng:      30.0,
			Accuracy: 5,
		})
	}
	require.Equal(t, 10, w.Pending())

	w.Flush()

	assert.Equal(t, 0, w.Pending())
	var count int64
	require.NoError(t, s.DB().Model(&model.LocationSample{}).Count(&count).Error)
	assert.Equal(t, int64(10), count)
}

func TestFlush_EmptyQueueIsNoop(t *testing.T) {
	w, s := newTestWriter(t)

	w.Flush()

	var count int64
	require.NoError(t, s.DB().Model(&model.LocationSample{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestStartStop(t *testing.T) {
	w, s := newTestWriter(t)

	w.Start()
	require.True(t, w.IsRunning())

	w.Record(model.LocationSample{Time: time.Now().UTC(), PlayerID: 1, Lat: 50, Lng: 30})
	w.Stop()

	// Stop triggers a final drain; give the goroutine a moment.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !w.IsRunning() && w.Pending() == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	var count int64
	require.NoError(t, s.DB().Model(&model.LocationSample{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
