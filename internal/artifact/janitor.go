// Package artifact tracks transient audio files and deletes them once their
// retention window lapses. Deletion is best-effort: scheduling the same file
// twice, or someone else removing it first, is harmless.
package artifact

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"
)

type entry struct {
	path string
	due  time.Time
}

// Janitor owns the deferred-cleanup schedule. The clock is a field so
// retention windows are testable without wall-clock waits.
type Janitor struct {
	log     *slog.Logger
	mu      sync.Mutex
	entries []entry
	clock   func() time.Time
}

func NewJanitor(logger *slog.Logger) *Janitor {
	return &Janitor{
		log:   logger.With(slog.String("component", "artifact-janitor")),
		clock: time.Now,
	}
}

// Schedule registers path for deletion once retention has elapsed.
func (j *Janitor) Schedule(path string, retention time.Duration) {
	j.mu.Lock()
	j.entries = append(j.entries, entry{path: path, due: j.clock().Add(retention)})
	j.mu.Unlock()
}

// Sweep deletes every due artifact and returns how many were removed.
// Missing files are treated as already cleaned up.
func (j *Janitor) Sweep() int {
	now := j.clock()

	j.mu.Lock()
	var due []string
	remaining := j.entries[:0]
	for _, e := range j.entries {
		if !e.due.After(now) {
			due = append(due, e.path)
		} else {
			remaining = append(remaining, e)
		}
	}
	j.entries = remaining
	j.mu.Unlock()

	removed := 0
	for _, path := range due {
		err := os.Remove(path)
		switch {
		case err == nil:
			removed++
			j.log.Info("cleaned up temporary audio file", slog.String("path", path))
		case os.IsNotExist(err):
			// already gone, nothing to do
		default:
			j.log.Warn("failed to remove artifact", slog.String("path", path), slog.String("error", err.Error()))
		}
	}
	return removed
}

// Pending reports how many artifacts still await deletion.
func (j *Janitor) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// Run sweeps on a fixed interval until ctx is cancelled. A final sweep with
// the deadline pushed past every entry is deliberately not performed: files
// whose window has not lapsed belong to responses possibly still in flight.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}
