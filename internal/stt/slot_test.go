package stt

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type countingEngine struct {
	closed atomic.Bool
}

func (c *countingEngine) Transcribe(_ context.Context, _ []byte, _ int) (string, error) {
	return "ok", nil
}

func (c *countingEngine) Close() error {
	c.closed.Store(true)
	return nil
}

func TestAcquireLoadsLazilyAndOnce(t *testing.T) {
	loads := 0
	factory := func(_ context.Context) (Engine, error) {
		loads++
		return &countingEngine{}, nil
	}
	slot := NewSlot(factory, 10*time.Minute, testLogger())
	if loads != 0 {
		t.Fatal("construction must not load")
	}

	first, err := slot.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	second, err := slot.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if loads != 1 {
		t.Fatalf("expected one load, got %d", loads)
	}
	if first != second {
		t.Fatal("expected the same loaded engine")
	}
}

func TestConcurrentAcquireSharesOneLoad(t *testing.T) {
	started := make(chan struct{})
	gate := make(chan struct{})
	var loads atomic.Int32
	factory := func(_ context.Context) (Engine, error) {
		loads.Add(1)
		close(started)
		<-gate
		return &countingEngine{}, nil
	}
	slot := NewSlot(factory, 10*time.Minute, testLogger())

	var wg sync.WaitGroup
	engines := make([]Engine, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			engines[i], errs[i] = slot.Acquire(context.Background())
		}(i)
	}

	<-started
	close(gate)
	wg.Wait()

	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			t.Fatalf("acquire %d: %v", i, errs[i])
		}
	}
	if loads.Load() != 1 {
		t.Fatalf("expected exactly one load for concurrent acquires, got %d", loads.Load())
	}
	if engines[0] != engines[1] {
		t.Fatal("both acquirers must share the loaded engine")
	}
}

func TestIdleUnloadTriggersFreshLoad(t *testing.T) {
	loads := 0
	var last *countingEngine
	factory := func(_ context.Context) (Engine, error) {
		loads++
		last = &countingEngine{}
		return last, nil
	}
	slot := NewSlot(factory, 10*time.Minute, testLogger())

	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	slot.clock = func() time.Time { return now }

	if _, err := slot.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	loaded := last

	now = now.Add(5 * time.Minute)
	if slot.SweepIdle() {
		t.Fatal("engine still within the inactivity threshold")
	}

	now = now.Add(6 * time.Minute)
	if !slot.SweepIdle() {
		t.Fatal("expected idle unload past the threshold")
	}
	if !loaded.closed.Load() {
		t.Fatal("unload must close the engine")
	}

	if _, err := slot.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire after unload: %v", err)
	}
	if loads != 2 {
		t.Fatalf("expected the load path re-triggered exactly once, got %d loads", loads)
	}
	if last == loaded {
		t.Fatal("a stale engine reference must not be reused after unload")
	}
}

func TestAcquireWaiterHonorsContext(t *testing.T) {
	started := make(chan struct{})
	gate := make(chan struct{})
	factory := func(_ context.Context) (Engine, error) {
		close(started)
		<-gate
		return &countingEngine{}, nil
	}
	slot := NewSlot(factory, 10*time.Minute, testLogger())

	go func() {
		_, _ = slot.Acquire(context.Background())
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := slot.Acquire(ctx); err == nil {
		t.Fatal("cancelled waiter must return the context error")
	}
	close(gate)
}
