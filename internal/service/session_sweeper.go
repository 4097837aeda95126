package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SessionSweeper is a background worker that unloads idle sessions so their
// pending uploads are flushed and their views released
type SessionSweeper struct {
	manager     *SessionManager
	logger      zerolog.Logger
	interval    time.Duration
	idleTimeout time.Duration
	now         func() time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	mu          sync.Mutex
	running     bool
}

// SessionSweeperConfig holds configuration for the session sweeper
type SessionSweeperConfig struct {
	Interval    time.Duration // How often to look for idle sessions
	IdleTimeout time.Duration // How long a session may go unused
}

// DefaultSessionSweeperConfig returns sensible defaults
func DefaultSessionSweeperConfig() SessionSweeperConfig {
	return SessionSweeperConfig{
		Interval:    5 * time.Minute,
		IdleTimeout: 30 * time.Minute,
	}
}

// NewSessionSweeper creates a new session sweeper
func NewSessionSweeper(manager *SessionManager, logger zerolog.Logger, config SessionSweeperConfig) *SessionSweeper {
	defaults := DefaultSessionSweeperConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = defaults.IdleTimeout
	}

	return &SessionSweeper{
		manager:     manager,
		logger:      logger.With().Str("component", "session_sweeper").Logger(),
		interval:    config.Interval,
		idleTimeout: config.IdleTimeout,
		now:         manager.config.Now,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins sweeping in the background
func (w *SessionSweeper) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info().
		Dur("interval", w.interval).
		Dur("idle_timeout", w.idleTimeout).
		Msg("Starting session sweeper")

	go w.run(ctx)
}

// Stop stops the sweeper and waits for the current sweep to finish
func (w *SessionSweeper) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	w.logger.Info().Msg("Stopping session sweeper")
	close(w.stopCh)
	<-w.doneCh
	w.logger.Info().Msg("Session sweeper stopped")
}

func (w *SessionSweeper) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.setStopped()
			return
		case <-w.stopCh:
			w.setStopped()
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

func (w *SessionSweeper) setStopped() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

// Sweep unloads every session idle for longer than the timeout
func (w *SessionSweeper) Sweep(ctx context.Context) int {
	startTime := time.Now()
	unloaded := w.manager.SweepIdle(ctx, w.now().Add(-w.idleTimeout))

	if unloaded > 0 {
		w.logger.Info().
			Int("unloaded", unloaded).
			Int("remaining", w.manager.Count()).
			Dur("elapsed", time.Since(startTime)).
			Msg("Unloaded idle sessions")
	}
	return unloaded
}

// IsRunning returns whether the sweeper is currently running
func (w *SessionSweeper) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
