// Package trigger is the advisory low-latency path between ingestion and
// projection. Ingest kicks the bus after a successful store; workers
// listening on the bus run a cycle soon after. Advisory only: correctness
// never depends on a kick arriving, because the runner's backstop ticker
// (or an external scheduler hitting the trigger endpoint) drains the inbox
// regardless.
package trigger

import "context"

// Bus carries projector wake-up kicks. Kicks have no payload and coalesce
// freely: N kicks while a cycle is running wake at most one follow-up cycle.
type Bus interface {
	// Kick signals that new work may be available. Never blocks; a full
	// or disconnected bus drops the kick.
	Kick(ctx context.Context) error

	// Kicks is the receive side, consumed by a Runner.
	Kicks() <-chan struct{}

	// Close releases the bus.
	Close() error
}

// LocalBus is the in-process Bus for single-binary deployments and tests.
type LocalBus struct {
	ch chan struct{}
}

// NewLocalBus creates an in-process bus.
func NewLocalBus() *LocalBus {
	// Capacity 1 gives exactly the coalescing the pipeline wants: one
	// pending kick at most, extras dropped.
	return &LocalBus{ch: make(chan struct{}, 1)}
}

// Kick implements Bus.
func (b *LocalBus) Kick(context.Context) error {
	select {
	case b.ch <- struct{}{}:
	default:
	}
	return nil
}

// Kicks implements Bus.
func (b *LocalBus) Kicks() <-chan struct{} { return b.ch }

// Close implements Bus.
func (b *LocalBus) Close() error { return nil }
