package inbox

import (
	"context"
	"log/slog"
	"time"
)

// Reclaimer returns abandoned leases to the unclaimed pool. It runs
// unconditionally at the start of every projector cycle: cheap, idempotent,
// and the only mechanism that recovers work from a worker that crashed
// mid-batch.
type Reclaimer struct {
	store  Store
	cutoff time.Duration
	logger *slog.Logger
}

// NewReclaimer creates a reclaimer. cutoff is how long a lease may go silent
// before it counts as abandoned.
func NewReclaimer(store Store, cutoff time.Duration, logger *slog.Logger) *Reclaimer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reclaimer{
		store:  store,
		cutoff: cutoff,
		logger: logger,
	}
}

// ReclaimStale releases every claimed event whose heartbeat (or, absent any
// heartbeat, claim start time) is older than the cutoff, incrementing each
// event's attempts counter. A long-running handler keeps its lease as long as
// it emits heartbeats; a worker that died before its first heartbeat is still
// recovered via the claim start time.
func (r *Reclaimer) ReclaimStale(ctx context.Context) (int64, error) {
	abandonedBefore := time.Now().UTC().Add(-r.cutoff)

	n, err := r.store.ReclaimStale(ctx, abandonedBefore)
	if err != nil {
		return 0, err
	}

	if n > 0 {
		r.logger.WarnContext(ctx, "reclaimed abandoned events",
			"count", n, "cutoff", r.cutoff)
	}

	return n, nil
}
