package inbox

import (
	"context"
	"time"
)

// IngestOutcome reports what an Ingest upsert did.
type IngestOutcome string

const (
	// OutcomeCreated means a new inbox record was inserted.
	OutcomeCreated IngestOutcome = "created"

	// OutcomeDuplicate means the event id was already known; the record's
	// attempts counter was incremented and its receipt time refreshed.
	// Duplicates are expected under at-least-once delivery and are never
	// surfaced to the caller as an error.
	OutcomeDuplicate IngestOutcome = "duplicate"
)

// Store is the persistence interface for the inbox.
//
// Every mutation is a single atomic document operation; ClaimOne's
// conditional update is the sole mutual-exclusion primitive in the system.
type Store interface {
	// Ingest upserts an event by its EventID. On first insert the record
	// gets Attempts = 1; on redelivery of a known id, Attempts is
	// incremented and ReceivedAt refreshed without touching the
	// processing or processed flags.
	Ingest(ctx context.Context, evt *Event) (IngestOutcome, error)

	// ClaimOne atomically flips the oldest claimable event (ReceivedAt
	// ascending) from unclaimed to claimed, stamping a fresh
	// ProcessingStartedAt and LastHeartbeat. Leases last touched before
	// leaseExpiredBefore count as abandoned and are claimable.
	// Returns (nil, nil) when nothing is claimable.
	ClaimOne(ctx context.Context, leaseExpiredBefore time.Time) (*Event, error)

	// Heartbeat refreshes the lease liveness signal for a claimed event.
	// A heartbeat for an event that is no longer claimed is a no-op.
	Heartbeat(ctx context.Context, eventID string) error

	// MarkProcessed records terminal success: processed = true,
	// processing = false, ProcessedAt stamped. Idempotent, so a worker
	// that wakes up after being reclaimed observes a benign no-op.
	MarkProcessed(ctx context.Context, eventID string) error

	// MarkFailed releases the claim, records the error message, and
	// increments Attempts. Returns the post-update event so the caller
	// can apply the dead-letter threshold.
	MarkFailed(ctx context.Context, eventID, cause string) (*Event, error)

	// MarkDeadLettered records terminal failure: the event is excluded
	// from all future claims until explicitly replayed.
	MarkDeadLettered(ctx context.Context, eventID string) error

	// ReclaimStale releases every claimed event whose lease went silent
	// before abandonedBefore (no heartbeat since then, or never a
	// heartbeat and claimed before then), incrementing Attempts on each.
	// Returns the number of events released.
	ReclaimStale(ctx context.Context, abandonedBefore time.Time) (int64, error)

	// Replay resets a dead-lettered event so it re-enters the claimable
	// pool with a zeroed attempts counter.
	Replay(ctx context.Context, eventID string) error

	// GetEvent returns an event by its provider event id.
	GetEvent(ctx context.Context, eventID string) (*Event, error)

	// ListEvents returns inbox records matching the given options,
	// newest receipt first.
	ListEvents(ctx context.Context, opts ListOpts) ([]*Event, error)

	// CountEvents summarizes the inbox by lifecycle state.
	CountEvents(ctx context.Context) (Counts, error)

	// PurgeProcessed deletes processed events whose ProcessedAt is older
	// than the cutoff. Retention hygiene only; never touches unprocessed
	// or dead-lettered records.
	PurgeProcessed(ctx context.Context, before time.Time) (int64, error)
}
