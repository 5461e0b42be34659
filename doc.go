// Package prism is an identity-event ingestion and projection pipeline.
//
// Prism is a library, not a service. It durably records third-party
// identity webhook events (user and organization lifecycle notifications)
// in an inbox collection, then projects them idempotently and in a
// causally consistent order onto a materialized users view. The pipeline
// is at-least-once end to end: duplicate delivery, out-of-order delivery,
// crashed workers, and poison events are all handled explicitly.
//
// Key properties:
//   - Idempotent ingestion deduplicated by the provider's event id
//   - Atomic claim/lease of work batches with no external lock manager
//   - Heartbeat-based reclaim of work abandoned by crashed workers
//   - Per-entity out-of-order guard on the materialized view
//   - Dead-lettering of poison events after a configurable attempt
//     threshold, with best-effort external alerting
//
// Quick start:
//
//	p, err := prism.New(
//	    prism.WithStore(memoryStore),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := p.Ingest(ctx, prism.IngestInput{
//	    DeliveryID: "whd_123",
//	    Body:       body,
//	    Source:     "hubspot",
//	})
//
//	stats, err := p.RunCycle(ctx)
package prism
