package observability

import (
	gu "github.com/xraph/go-utils/metrics"
)

// Metrics holds metric instruments for Prism, backed by any go-utils
// MetricFactory.
type Metrics struct {
	EventsIngestedTotal  gu.Counter
	EventsProcessedTotal gu.Counter
	EventsReclaimedTotal gu.Counter
	CyclesTotal          gu.Counter
	CycleDuration        gu.Histogram
	DeadLetteredTotal    gu.Counter
}

// NewMetrics creates Prism metric instruments using the supplied factory.
func NewMetrics(factory gu.MetricFactory) *Metrics {
	return &Metrics{
		EventsIngestedTotal:  factory.Counter("prism_events_ingested_total"),
		EventsProcessedTotal: factory.Counter("prism_events_processed_total"),
		EventsReclaimedTotal: factory.Counter("prism_events_reclaimed_total"),
		CyclesTotal:          factory.Counter("prism_projector_cycles_total"),
		CycleDuration:        factory.Histogram("prism_projector_cycle_seconds"),
		DeadLetteredTotal:    factory.Counter("prism_events_dead_lettered_total"),
	}
}

// RecordIngest records an accepted delivery with its dedup outcome
// ("created" or "duplicate").
func (m *Metrics) RecordIngest(outcome string) {
	m.EventsIngestedTotal.WithLabels(map[string]string{"outcome": outcome}).Inc()
}

// RecordEvent records one finalized event with its status
// ("processed", "failed", or "dead_lettered").
func (m *Metrics) RecordEvent(status string) {
	m.EventsProcessedTotal.WithLabels(map[string]string{"status": status}).Inc()
	if status == "dead_lettered" {
		m.DeadLetteredTotal.Inc()
	}
}

// RecordCycle records one completed projector cycle.
func (m *Metrics) RecordCycle(outcome string, durationSeconds float64, reclaimed int64) {
	m.CyclesTotal.WithLabels(map[string]string{"outcome": outcome}).Inc()
	m.CycleDuration.Observe(durationSeconds)
	for range reclaimed {
		m.EventsReclaimedTotal.Inc()
	}
}
