// Package store defines the composite Store interface for all Prism
// persistence. Each subsystem defines its own narrow store interface; the
// aggregate Store composes them.
package store

import (
	"context"

	"github.com/nexlead/prism/inbox"
	"github.com/nexlead/prism/projection"
)

// Store is the aggregate persistence interface: the inbox collection and
// the projection collection, plus lifecycle.
type Store interface {
	inbox.Store
	projection.Store

	// Migrate performs the idempotent schema/index setup. Run once at
	// process start, never lazily.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
