// Package projector folds claimed inbox events into the materialized user
// view. Any number of projector invocations may run concurrently across
// workers: there is no leader election and no lock manager, only the inbox
// store's atomic claim update. Per-entity correctness under cross-worker
// reordering comes from the projection store's out-of-order guard.
package projector

import (
	"context"
	"log/slog"
	"time"

	"github.com/nexlead/prism/catalog"
	"github.com/nexlead/prism/deadletter"
	"github.com/nexlead/prism/id"
	"github.com/nexlead/prism/inbox"
	"github.com/nexlead/prism/internal/retry"
	"github.com/nexlead/prism/observability"
	"github.com/nexlead/prism/projection"
	"go.opentelemetry.io/otel/trace"
)

// Config holds projector configuration.
type Config struct {
	// BatchSize is the maximum number of events claimed per cycle.
	BatchSize int

	// StoreRetries and StoreRetryBackoff bound the fixed retry applied to
	// transient store failures when finalizing an event.
	StoreRetries      int
	StoreRetryBackoff []time.Duration

	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Stats reports what one cycle did.
type Stats struct {
	Reclaimed int64 `json:"reclaimed"`
	Claimed   int   `json:"claimed"`
	Processed int   `json:"processed"`
	Failed    int   `json:"failed"`
}

// Projector runs projection cycles.
type Projector struct {
	inbox      inbox.Store
	projection projection.Store
	claimer    *inbox.Claimer
	reclaimer  *inbox.Reclaimer
	escalator  *deadletter.Escalator
	config     Config
	logger     *slog.Logger
}

// New creates a projector.
func New(
	inboxStore inbox.Store,
	projectionStore projection.Store,
	claimer *inbox.Claimer,
	reclaimer *inbox.Reclaimer,
	escalator *deadletter.Escalator,
	cfg Config,
	logger *slog.Logger,
) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projector{
		inbox:      inboxStore,
		projection: projectionStore,
		claimer:    claimer,
		reclaimer:  reclaimer,
		escalator:  escalator,
		config:     cfg,
		logger:     logger,
	}
}

// RunCycle executes one projection cycle: reclaim abandoned leases, claim a
// batch, then apply each event sequentially. Sequential application bounds
// write amplification on the projection store; throughput scales by running
// more concurrent cycles, not by parallelizing within one.
//
// A reclaim or claim failure aborts the whole cycle; the next scheduled
// cycle retries from scratch, which is safe because every operation is
// idempotent. A single event's handler failure never aborts the batch.
func (p *Projector) RunCycle(ctx context.Context) (Stats, error) {
	cycleID := id.NewCycleID()
	started := time.Now()

	var span trace.Span
	if p.config.Tracer != nil {
		ctx, span = p.config.Tracer.StartCycleSpan(ctx, cycleID.String())
	}

	stats, err := p.runCycle(ctx, cycleID)

	outcome := "ok"
	errMsg := ""
	if err != nil {
		outcome = "aborted"
		errMsg = err.Error()
	}

	if p.config.Metrics != nil {
		p.config.Metrics.RecordCycle(outcome, time.Since(started).Seconds(), stats.Reclaimed)
	}
	if span != nil {
		p.config.Tracer.EndCycleSpan(span, stats.Reclaimed, stats.Claimed, stats.Processed, stats.Failed, errMsg)
	}

	return stats, err
}

func (p *Projector) runCycle(ctx context.Context, cycleID id.ID) (Stats, error) {
	var stats Stats

	reclaimed, err := p.reclaimer.ReclaimStale(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "reclaim failed", "cycle_id", cycleID, "error", err)
		return stats, err
	}
	stats.Reclaimed = reclaimed

	batch, err := p.claimer.ClaimBatch(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "claim batch failed", "cycle_id", cycleID, "error", err)
		return stats, err
	}
	stats.Claimed = len(batch)

	for _, evt := range batch {
		if p.processOne(ctx, cycleID, evt) {
			stats.Processed++
		} else {
			stats.Failed++
		}
	}

	if stats.Claimed > 0 {
		p.logger.InfoContext(ctx, "cycle complete",
			"cycle_id", cycleID,
			"reclaimed", stats.Reclaimed,
			"claimed", stats.Claimed,
			"processed", stats.Processed,
			"failed", stats.Failed,
		)
	}

	return stats, nil
}

// processOne applies one claimed event and finalizes it. Returns true on
// terminal success.
func (p *Projector) processOne(ctx context.Context, cycleID id.ID, evt *inbox.Event) bool {
	var span trace.Span
	if p.config.Tracer != nil {
		ctx, span = p.config.Tracer.StartApplySpan(ctx, evt.EventID, evt.EventType)
	}

	// One heartbeat before and one after the handler: a handler that runs
	// long keeps its lease alive, and a worker that dies inside the
	// handler leaves a heartbeat old enough for the reclaimer to act on.
	p.heartbeat(ctx, evt.EventID)

	applyErr := p.apply(ctx, evt)

	p.heartbeat(ctx, evt.EventID)

	status := "processed"
	errMsg := ""

	if applyErr != nil {
		status = "failed"
		errMsg = applyErr.Error()

		deadLettered, escErr := p.escalator.MarkFailed(ctx, evt.EventID, applyErr)
		if escErr != nil {
			p.logger.ErrorContext(ctx, "record failure failed",
				"cycle_id", cycleID, "event_id", evt.EventID, "error", escErr)
		}
		if deadLettered {
			status = "dead_lettered"
		}
	} else {
		// MarkProcessed is idempotent: if another attempt already
		// completed this event after a reclaim, this degrades to a
		// benign no-op.
		finalizeErr := retry.Do(ctx, p.config.StoreRetries, p.config.StoreRetryBackoff,
			func(ctx context.Context) error {
				return p.inbox.MarkProcessed(ctx, evt.EventID)
			})
		if finalizeErr != nil {
			// The event stays claimed until its lease expires, then
			// retries. Harmless double-apply: the projection's
			// out-of-order guard absorbs replays.
			p.logger.ErrorContext(ctx, "mark processed failed",
				"cycle_id", cycleID, "event_id", evt.EventID, "error", finalizeErr)
			status = "failed"
			errMsg = finalizeErr.Error()
		}
	}

	if p.config.Metrics != nil {
		p.config.Metrics.RecordEvent(status)
	}
	if span != nil {
		p.config.Tracer.EndApplySpan(span, status, errMsg)
	}

	return status == "processed"
}

func (p *Projector) heartbeat(ctx context.Context, eventID string) {
	if err := p.inbox.Heartbeat(ctx, eventID); err != nil {
		p.logger.WarnContext(ctx, "heartbeat failed", "event_id", eventID, "error", err)
	}
}

// apply dispatches one event to its handler by type. Types without a
// handler are acknowledged and marked processed without touching the
// projection, keeping the pipeline forward-compatible with event kinds
// added upstream before they are handled here.
func (p *Projector) apply(ctx context.Context, evt *inbox.Event) error {
	switch evt.EventType {
	case catalog.TypeUserDeleted:
		return p.applyUserDeleted(ctx, evt)
	case catalog.TypeUserCreated, catalog.TypeUserUpdated:
		return p.applyUserUpsert(ctx, evt)
	default:
		return nil
	}
}
