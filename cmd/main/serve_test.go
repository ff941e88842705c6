package main

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func setupTestLogger(t *testing.T) {
	t.Helper()
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunRebuildSerializes(t *testing.T) {
	setupTestLogger(t)

	var (
		mu       sync.Mutex
		inFlight atomic.Int32
		overlap  atomic.Bool
		builds   atomic.Int32
	)
	doBuild := func() error {
		if inFlight.Add(1) > 1 {
			overlap.Store(true)
		}
		defer inFlight.Add(-1)
		time.Sleep(time.Millisecond)
		builds.Add(1)
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runRebuild(&mu, doBuild, func() {})
		}()
	}
	wg.Wait()

	if overlap.Load() {
		t.Error("rebuilds ran concurrently")
	}
	if got := builds.Load(); got != 8 {
		t.Errorf("builds = %d, want 8", got)
	}
}

func TestRunRebuildNotifiesOnlyOnSuccess(t *testing.T) {
	setupTestLogger(t)

	var mu sync.Mutex
	notified := 0

	runRebuild(&mu, func() error { return errors.New("boom") }, func() { notified++ })
	if notified != 0 {
		t.Error("failed rebuild notified browsers")
	}

	runRebuild(&mu, func() error { return nil }, func() { notified++ })
	if notified != 1 {
		t.Errorf("notified = %d, want 1", notified)
	}
}
