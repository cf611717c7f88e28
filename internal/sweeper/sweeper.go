package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/pda-zone/engine/internal/artifact"
	"github.com/rs/zerolog"
)

// Dependencies holds all dependencies for the sweeper service.
type Dependencies struct {
	Artifacts *artifact.Engine
	Logger    zerolog.Logger
}

// Service periodically returns due respawning artifacts to the field. A
// single sweep per process is enough; the activation update itself is safe to
// run from several processes at once.
type Service struct {
	deps      Dependencies
	interval  time.Duration
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
}

// NewService creates a new sweeper running at the given interval.
func NewService(deps Dependencies, interval time.Duration) *Service {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Service{
		deps:     deps,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the background sweep is running.
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// RunOnce performs a single sweep.
func (s *Service) RunOnce(ctx context.Context) (int, error) {
	n, err := s.deps.Artifacts.SweepRespawns(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.deps.Logger.Info().Int("activated", n).Msg("Respawn sweep activated artifacts")
	}
	return n, nil
}

// Start starts the background sweep goroutine.
func (s *Service) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				if _, err := s.RunOnce(context.Background()); err != nil {
					s.deps.Logger.Error().Err(err).Msg("Respawn sweep failed")
				}
			}
		}
	}()
}

// Stop stops the background sweep.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		close(s.stopChan)
	}
}
