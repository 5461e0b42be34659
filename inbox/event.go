// Package inbox is the durable write-ahead store of accepted identity events.
//
// Every verified webhook delivery is upserted here keyed by the provider's
// event id, then claimed, applied, and marked processed (or dead-lettered) by
// the projector. The inbox is the only coordination point between ingestion
// and projection: all mutual exclusion is expressed as atomic conditional
// updates on a single event record.
package inbox

import (
	"encoding/json"
	"time"

	"github.com/nexlead/prism/id"
	"github.com/nexlead/prism/internal/entity"
)

// Event is one durable record per accepted webhook delivery.
type Event struct {
	entity.Entity

	// ID is the Prism-minted storage identity of this record.
	ID id.ID `json:"id"`

	// EventID is the provider-assigned event identity and the dedup key.
	// Falls back to the transport-level delivery id when the payload
	// carries none.
	EventID string `json:"event_id"`

	// DeliveryID is the transport-level delivery id from the webhook headers.
	DeliveryID string `json:"delivery_id"`

	// EventType is the normalized domain event kind (e.g. "user.created").
	// Unrecognized types are stored as catalog.TypeUnknown, never rejected.
	EventType string `json:"event_type"`

	// Source labels the provider that sent the event, for inspection.
	Source string `json:"source,omitempty"`

	// Payload is the verified, parsed event body, retained for replay
	// and debugging.
	Payload json.RawMessage `json:"payload"`

	// OccurredAt is the provider's notion of when the underlying change
	// happened. Nil when the payload carries no usable timestamp.
	OccurredAt *time.Time `json:"occurred_at,omitempty"`

	// ReceivedAt is when this system accepted the most recent delivery.
	ReceivedAt time.Time `json:"received_at"`

	// Processing is the lease flag: true while a worker holds a claim.
	Processing bool `json:"processing"`

	// ProcessingStartedAt is when the current (or last) claim was taken.
	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty"`

	// LastHeartbeat is the most recent liveness signal from the claiming
	// worker. The reclaimer treats a silent lease as abandoned.
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`

	// Processed marks the terminal success state.
	Processed   bool       `json:"processed"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`

	// Attempts increases monotonically: 1 on first insert, +1 per
	// redelivery, +1 per reclaim, +1 per recorded failure.
	Attempts int `json:"attempts"`

	// LastError is the error message from the most recent failed attempt.
	LastError string `json:"last_error,omitempty"`

	// DeadLettered marks the terminal failure state. Dead-lettered events
	// are permanently excluded from claims until explicitly replayed.
	DeadLettered bool `json:"dead_lettered"`
}

// Claimable reports whether the event may be claimed at the given instant,
// with leases older than leaseExpiredBefore considered abandoned.
func (e *Event) Claimable(leaseExpiredBefore time.Time) bool {
	if e.Processed || e.DeadLettered {
		return false
	}

	if !e.Processing {
		return true
	}

	// Lease held: claimable only if it has expired. A live worker keeps
	// the lease via heartbeats; a worker that died before its first
	// heartbeat is covered by the claim start time.
	if e.LastHeartbeat != nil {
		return e.LastHeartbeat.Before(leaseExpiredBefore)
	}

	return e.ProcessingStartedAt != nil && e.ProcessingStartedAt.Before(leaseExpiredBefore)
}

// State is a coarse lifecycle label derived from the event's flags,
// used for inspection and filtering.
type State string

const (
	// StatePending means the event is unclaimed and awaiting processing.
	StatePending State = "pending"

	// StateProcessing means a worker currently holds the lease.
	StateProcessing State = "processing"

	// StateProcessed is the terminal success state.
	StateProcessed State = "processed"

	// StateDeadLettered is the terminal failure state.
	StateDeadLettered State = "dead_lettered"
)

// State returns the event's lifecycle label.
func (e *Event) State() State {
	switch {
	case e.DeadLettered:
		return StateDeadLettered
	case e.Processed:
		return StateProcessed
	case e.Processing:
		return StateProcessing
	default:
		return StatePending
	}
}

// ListOpts configures filtering and pagination for inbox listing.
type ListOpts struct {
	Offset int
	Limit  int
	State  State
	Type   string
	From   *time.Time
	To     *time.Time
}

// Counts summarizes the inbox by lifecycle state, plus the age of the
// oldest unprocessed event as a processing-lag signal.
type Counts struct {
	Pending           int64      `json:"pending"`
	Processing        int64      `json:"processing"`
	Processed         int64      `json:"processed"`
	DeadLettered      int64      `json:"dead_lettered"`
	OldestUnprocessed *time.Time `json:"oldest_unprocessed,omitempty"`
}
