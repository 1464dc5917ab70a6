package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunImmediatelyFiresFirstTick(t *testing.T) {
	s := New(Options{Interval: time.Hour, RunImmediately: true}, zerolog.Nop())

	fired := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = s.Run(ctx, func(ctx context.Context, at time.Time) error {
			close(fired)
			return nil
		})
	}()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("first tick should fire without waiting a full interval")
	}
	cancel()
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New(Options{Interval: 5 * time.Millisecond}, zerolog.Nop())

	var ticks atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context, at time.Time) error {
			ticks.Add(1)
			return nil
		})
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
	if ticks.Load() == 0 {
		t.Fatal("expected at least one tick before cancellation")
	}
}

func TestTickErrorsDoNotStopTheLoop(t *testing.T) {
	s := New(Options{Interval: 5 * time.Millisecond, RunImmediately: true}, zerolog.Nop())

	var ticks atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = s.Run(ctx, func(ctx context.Context, at time.Time) error {
			ticks.Add(1)
			return errors.New("cycle failed")
		})
	}()

	deadline := time.After(2 * time.Second)
	for ticks.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("loop should survive tick errors, saw %d ticks", ticks.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}
