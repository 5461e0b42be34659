package prism

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nexlead/prism/catalog"
	"github.com/nexlead/prism/deadletter"
	"github.com/nexlead/prism/inbox"
	"github.com/nexlead/prism/internal/retry"
	"github.com/nexlead/prism/observability"
	"github.com/nexlead/prism/payload"
	"github.com/nexlead/prism/projector"
	"github.com/nexlead/prism/store"
	"github.com/nexlead/prism/trigger"
)

// Prism is the root of the identity-event pipeline: the inbox, the
// projector, and the advisory trigger path between them.
type Prism struct {
	config    Config
	store     store.Store
	registry  *catalog.Registry
	claimer   *inbox.Claimer
	reclaimer *inbox.Reclaimer
	escalator *deadletter.Escalator
	projector *projector.Projector
	bus       trigger.Bus
	runner    *trigger.Runner
	notifier  deadletter.Notifier
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	logger    *slog.Logger
}

// Option configures a Prism instance.
type Option func(*Prism) error

// New creates a new Prism with the given options.
func New(opts ...Option) (*Prism, error) {
	p := &Prism{
		config:   DefaultConfig(),
		registry: catalog.NewRegistry(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	if p.store == nil {
		return nil, ErrNoStore
	}
	p.wireServices()
	return p, nil
}

// wireServices initializes the internal services after options have been
// applied.
func (p *Prism) wireServices() {
	if p.bus == nil {
		p.bus = trigger.NewLocalBus()
	}

	p.claimer = inbox.NewClaimer(p.store, p.config.ReclaimCutoff, p.config.MaxParallelClaims)
	p.reclaimer = inbox.NewReclaimer(p.store, p.config.ReclaimCutoff, p.logger)
	p.escalator = deadletter.NewEscalator(p.store, p.notifier, p.config.DeadLetterThreshold, p.logger)

	p.projector = projector.New(p.store, p.store, p.claimer, p.reclaimer, p.escalator,
		projector.Config{
			BatchSize:         p.config.BatchSize,
			StoreRetries:      p.config.StoreRetries,
			StoreRetryBackoff: p.config.StoreRetryBackoff,
			Metrics:           p.metrics,
			Tracer:            p.tracer,
		}, p.logger)

	p.runner = trigger.NewRunner(p.bus, p.config.CycleInterval,
		func(ctx context.Context) error {
			_, err := p.RunCycle(ctx)
			return err
		}, p.logger)
}

// Start begins the background trigger runner. Optional: deployments that
// drive projection purely through the trigger endpoint (or an external
// scheduler) never need to call it.
func (p *Prism) Start(ctx context.Context) {
	p.runner.Start(ctx)
}

// Stop shuts down the trigger runner and waits for an in-flight cycle.
func (p *Prism) Stop(ctx context.Context) {
	p.runner.Stop(ctx)
}

// IngestInput is one verified webhook delivery handed over by the
// transport layer.
type IngestInput struct {
	// DeliveryID is the transport-level delivery id header. Doubles as
	// the event id when the payload carries none.
	DeliveryID string

	// Body is the verified raw payload.
	Body []byte

	// Source labels the provider, for inspection.
	Source string
}

// IngestResult is the acknowledgement for one delivery.
type IngestResult struct {
	EventID   string              `json:"event_id"`
	EventType string              `json:"event_type"`
	Outcome   inbox.IngestOutcome `json:"outcome"`
}

// Ingest durably records a verified delivery in the inbox, then fires an
// advisory kick at the projector.
//
// The critical path:
//  1. Read the event identity from the payload envelope, falling back to
//     the transport delivery id.
//  2. Normalize the event type against the catalog (unknown kinds are
//     stored under the sentinel type, never rejected).
//  3. Validate the payload against the type's schema, if one is registered.
//  4. Derive the provider's change timestamp from the payload.
//  5. Upsert into the inbox (dedup by event id, attempts incremented on
//     redelivery), retrying transient store failures.
//  6. Kick the trigger bus. Advisory only: a lost kick costs latency, not
//     correctness, so kick failures are logged and swallowed.
func (p *Prism) Ingest(ctx context.Context, in IngestInput) (IngestResult, error) {
	if p.config.MaxBodyBytes > 0 && int64(len(in.Body)) > p.config.MaxBodyBytes {
		return IngestResult{}, ErrPayloadTooLarge
	}

	env, err := payload.ParseEnvelope(in.Body)
	if err != nil {
		return IngestResult{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	eventID := env.EventID
	if eventID == "" {
		eventID = in.DeliveryID
	}
	if eventID == "" {
		return IngestResult{}, ErrMissingEventID
	}

	eventType := p.registry.Normalize(env.Type)

	if validateErr := p.registry.Validate(eventType, in.Body); validateErr != nil {
		return IngestResult{}, fmt.Errorf("%w: %w", ErrSchemaViolation, validateErr)
	}

	evt := &inbox.Event{
		EventID:    eventID,
		DeliveryID: in.DeliveryID,
		EventType:  eventType,
		Source:     in.Source,
		Payload:    json.RawMessage(in.Body),
		OccurredAt: payload.OccurredAt(in.Body),
	}

	var outcome inbox.IngestOutcome
	ingestErr := retry.Do(ctx, p.config.StoreRetries, p.config.StoreRetryBackoff,
		func(ctx context.Context) error {
			var err error
			outcome, err = p.store.Ingest(ctx, evt)
			return err
		})
	if ingestErr != nil {
		return IngestResult{}, fmt.Errorf("prism: ingest %s: %w", eventID, ingestErr)
	}

	if p.metrics != nil {
		p.metrics.RecordIngest(string(outcome))
	}

	if kickErr := p.bus.Kick(ctx); kickErr != nil {
		p.logger.WarnContext(ctx, "projector kick failed", "error", kickErr)
	}

	return IngestResult{EventID: eventID, EventType: eventType, Outcome: outcome}, nil
}

// RunCycle executes one projection cycle. Safe to call concurrently from
// any number of workers.
func (p *Prism) RunCycle(ctx context.Context) (projector.Stats, error) {
	return p.projector.RunCycle(ctx)
}

// Registry exposes the event type catalog for registration and inspection.
func (p *Prism) Registry() *catalog.Registry { return p.registry }

// Store exposes the underlying store for inspection APIs.
func (p *Prism) Store() store.Store { return p.store }

// Config returns the effective configuration.
func (p *Prism) Config() Config { return p.config }

// Logger returns the instance logger.
func (p *Prism) Logger() *slog.Logger { return p.logger }

// Migrate performs the idempotent index setup on the underlying store.
func (p *Prism) Migrate(ctx context.Context) error {
	return p.store.Migrate(ctx)
}

// PurgeProcessed deletes processed inbox events older than the retention
// cutoff. Housekeeping for an external scheduler.
func (p *Prism) PurgeProcessed(ctx context.Context, olderThan time.Duration) (int64, error) {
	return p.store.PurgeProcessed(ctx, time.Now().UTC().Add(-olderThan))
}
