package stt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Slot is the single-slot holder for the shared recognition engine.
// Lifecycle: unloaded -> loading -> ready -> (idle) -> unloaded. At most one
// load is ever in flight; callers arriving during a load wait for it instead
// of starting another.
type Slot struct {
	mu      sync.Mutex
	engine  Engine
	loading chan struct{} // non-nil while a load is in flight, closed on completion
	lastUse time.Time

	factory   EngineFactory
	idleAfter time.Duration
	clock     func() time.Time
	logger    *slog.Logger
}

func NewSlot(factory EngineFactory, idleAfter time.Duration, logger *slog.Logger) *Slot {
	return &Slot{
		factory:   factory,
		idleAfter: idleAfter,
		clock:     time.Now,
		logger:    logger.With(slog.String("component", "stt-slot")),
	}
}

// Acquire returns the loaded engine, loading it first if necessary. Waiters
// block on the in-flight load's completion (or ctx) rather than polling.
func (s *Slot) Acquire(ctx context.Context) (Engine, error) {
	for {
		s.mu.Lock()
		if s.engine != nil {
			s.lastUse = s.clock()
			engine := s.engine
			s.mu.Unlock()
			return engine, nil
		}
		if s.loading != nil {
			done := s.loading
			s.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		done := make(chan struct{})
		s.loading = done
		s.mu.Unlock()

		s.logger.Info("loading recognition model")
		start := s.clock()
		engine, err := s.factory(ctx)

		s.mu.Lock()
		if err == nil {
			s.engine = engine
			s.lastUse = s.clock()
		}
		s.loading = nil
		close(done)
		s.mu.Unlock()

		if err != nil {
			return nil, fmt.Errorf("load recognition model: %w", err)
		}
		s.logger.Info("recognition model loaded", slog.Duration("took", s.clock().Sub(start)))
		return engine, nil
	}
}

// SweepIdle unloads the engine when it has been unused past the inactivity
// threshold. Returns true when an unload happened.
func (s *Slot) SweepIdle() bool {
	s.mu.Lock()
	if s.engine == nil || s.clock().Sub(s.lastUse) <= s.idleAfter {
		s.mu.Unlock()
		return false
	}
	engine := s.engine
	s.engine = nil
	s.mu.Unlock()

	s.logger.Info("unloading recognition model due to inactivity")
	if err := engine.Close(); err != nil {
		s.logger.Warn("engine close failed", slog.String("error", err.Error()))
	}
	return true
}

// Run checks the idle threshold on a fixed interval until ctx is cancelled.
func (s *Slot) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepIdle()
		}
	}
}

// Close releases a loaded engine immediately.
func (s *Slot) Close() {
	s.mu.Lock()
	engine := s.engine
	s.engine = nil
	s.mu.Unlock()
	if engine != nil {
		_ = engine.Close()
	}
}
