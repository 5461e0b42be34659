package observability

import (
	"testing"

	gu "github.com/xraph/go-utils/metrics"
)

// fakeCounter records increments and the last label set it was scoped
// with. Embedding the interface keeps the fake small.
type fakeCounter struct {
	gu.Counter
	n      int
	labels map[string]string
}

func (c *fakeCounter) Inc() { c.n++ }

func (c *fakeCounter) WithLabels(labels map[string]string) gu.Counter {
	c.labels = labels
	return c
}

type fakeHistogram struct {
	gu.Histogram
	observed []float64
}

func (h *fakeHistogram) Observe(v float64) { h.observed = append(h.observed, v) }

func TestNewMetrics_Registers(t *testing.T) {
	m := NewMetrics(gu.NewMetricsCollector("prism"))

	if m.EventsIngestedTotal == nil {
		t.Fatal("EventsIngestedTotal should not be nil")
	}
	if m.EventsProcessedTotal == nil {
		t.Fatal("EventsProcessedTotal should not be nil")
	}
	if m.EventsReclaimedTotal == nil {
		t.Fatal("EventsReclaimedTotal should not be nil")
	}
	if m.CyclesTotal == nil {
		t.Fatal("CyclesTotal should not be nil")
	}
	if m.CycleDuration == nil {
		t.Fatal("CycleDuration should not be nil")
	}
	if m.DeadLetteredTotal == nil {
		t.Fatal("DeadLetteredTotal should not be nil")
	}
}

func TestRecordIngest(t *testing.T) {
	ingested := &fakeCounter{}
	m := &Metrics{EventsIngestedTotal: ingested}

	m.RecordIngest("created")
	m.RecordIngest("created")
	m.RecordIngest("duplicate")

	if ingested.n != 3 {
		t.Fatalf("expected 3 increments, got %d", ingested.n)
	}
	if ingested.labels["outcome"] != "duplicate" {
		t.Fatalf("labels: %v", ingested.labels)
	}
}

func TestRecordEvent(t *testing.T) {
	processed := &fakeCounter{}
	dead := &fakeCounter{}
	m := &Metrics{
		EventsProcessedTotal: processed,
		DeadLetteredTotal:    dead,
	}

	m.RecordEvent("processed")
	m.RecordEvent("failed")

	if processed.n != 2 {
		t.Fatalf("expected 2 increments, got %d", processed.n)
	}
	if dead.n != 0 {
		t.Fatalf("dead-letter counter moved early: %d", dead.n)
	}

	m.RecordEvent("dead_lettered")

	if processed.n != 3 {
		t.Fatalf("expected 3 increments, got %d", processed.n)
	}
	if processed.labels["status"] != "dead_lettered" {
		t.Fatalf("labels: %v", processed.labels)
	}
	if dead.n != 1 {
		t.Fatalf("expected 1 dead-letter increment, got %d", dead.n)
	}
}

func TestRecordCycle(t *testing.T) {
	cycles := &fakeCounter{}
	reclaimed := &fakeCounter{}
	duration := &fakeHistogram{}
	m := &Metrics{
		CyclesTotal:          cycles,
		EventsReclaimedTotal: reclaimed,
		CycleDuration:        duration,
	}

	m.RecordCycle("ok", 0.25, 3)

	if cycles.n != 1 {
		t.Fatalf("expected 1 cycle, got %d", cycles.n)
	}
	if cycles.labels["outcome"] != "ok" {
		t.Fatalf("labels: %v", cycles.labels)
	}
	if len(duration.observed) != 1 || duration.observed[0] != 0.25 {
		t.Fatalf("observed: %v", duration.observed)
	}
	if reclaimed.n != 3 {
		t.Fatalf("expected 3 reclaim increments, got %d", reclaimed.n)
	}
}
