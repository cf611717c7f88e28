package history

import (
	"sync"
	"time"

	"github.com/pda-zone/engine/internal/model"
	"github.com/pda-zone/engine/internal/queue"
	"github.com/pda-zone/engine/internal/store"
	"github.com/rs/zerolog"
)

// Dependencies holds all dependencies for the history writer.
type Dependencies struct {
	Store  *store.Store
	Logger zerolog.Logger
}

// Writer persists the immutable location audit trail off the request hot
// path. Reports enqueue samples; a background goroutine drains the queue in
// batches.
type Writer struct {
	deps      Dependencies
	samples   *queue.Queue[model.LocationSample]
	interval  time.Duration
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
}

// NewWriter creates a new history writer flushing at the given interval.
func NewWriter(deps Dependencies, interval time.Duration) *Writer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Writer{
		deps:     deps,
		samples:  queue.New[model.LocationSample](),
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Record enqueues one sample. Never blocks.
func (w *Writer) Record(sample model.LocationSample) {
	w.samples.Push(sample)
}

// Pending returns the number of queued samples.
func (w *Writer) Pending() int {
	return w.samples.Len()
}

// IsRunning returns whether the background writer is running.
func (w *Writer) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.isRunning
}

// Start starts the background flush goroutine.
func (w *Writer) Start() {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return
	}
	w.isRunning = true
	w.stopChan = make(chan struct{})
	w.mu.Unlock()

	go func() {
		defer func() {
			w.mu.Lock()
			w.isRunning = false
			w.mu.Unlock()
		}()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.stopChan:
				// Final drain so a clean shutdown loses nothing.
				w.Flush()
				return
			case <-ticker.C:
				w.Flush()
			}
		}
	}()
}

// Stop stops the background writer, flushing what is queued.
func (w *Writer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		close(w.stopChan)
	}
}

// Flush writes all queued samples in one batch.
func (w *Writer) Flush() {
	batch := w.samples.Drain()
	if len(batch) == 0 {
		return
	}

	start := time.Now()
	if err := w.deps.Store.CreateLocationSamples(batch); err != nil {
		w.deps.Logger.Error().Err(err).Int("count", len(batch)).
			Msg("Failed to write location samples, re-queueing")
		w.samples.Push(batch...)
		return
	}

	w.deps.Logger.Debug().
		Int("count", len(batch)).
		Dur("duration", time.Since(start)).
		Msg("Flushed location samples")
}
