package trigger

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestLocalBusKickNeverBlocks(t *testing.T) {
	b := NewLocalBus()

	// Many kicks with no consumer: all must return immediately and
	// coalesce into at most one pending kick.
	for range 100 {
		if err := b.Kick(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-b.Kicks():
	default:
		t.Fatal("expected one pending kick")
	}

	select {
	case <-b.Kicks():
		t.Fatal("kicks must coalesce, got a second one")
	default:
	}
}

func TestRunnerRunsOnKick(t *testing.T) {
	b := NewLocalBus()

	var cycles atomic.Int32
	done := make(chan struct{}, 1)

	r := NewRunner(b, time.Hour, func(context.Context) error {
		cycles.Add(1)
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	}, nil)

	r.Start(context.Background())
	defer r.Stop(context.Background())

	if err := b.Kick(context.Background()); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cycle did not run after kick")
	}

	if cycles.Load() == 0 {
		t.Fatal("expected at least one cycle")
	}
}

func TestRunnerBackstopTicker(t *testing.T) {
	b := NewLocalBus()

	done := make(chan struct{}, 1)
	r := NewRunner(b, 10*time.Millisecond, func(context.Context) error {
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	}, nil)

	r.Start(context.Background())
	defer r.Stop(context.Background())

	// No kick is ever sent; the ticker alone must drive a cycle.
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("backstop ticker never fired a cycle")
	}
}

func TestRunnerStopWaitsForCycle(t *testing.T) {
	b := NewLocalBus()

	entered := make(chan struct{})
	var finished atomic.Bool

	r := NewRunner(b, time.Hour, func(context.Context) error {
		close(entered)
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return nil
	}, nil)

	r.Start(context.Background())
	if err := b.Kick(context.Background()); err != nil {
		t.Fatal(err)
	}

	<-entered
	r.Stop(context.Background())

	if !finished.Load() {
		t.Fatal("Stop returned before the in-flight cycle completed")
	}
}
