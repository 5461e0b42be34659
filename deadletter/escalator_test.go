package deadletter_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nexlead/prism/deadletter"
	"github.com/nexlead/prism/inbox"
	"github.com/nexlead/prism/store/memory"
)

func ctx() context.Context { return context.Background() }

// recordingNotifier captures alerts; optionally fails.
type recordingNotifier struct {
	mu     sync.Mutex
	alerts []*inbox.Event
	err    error
}

func (n *recordingNotifier) NotifyDeadLetter(_ context.Context, evt *inbox.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.alerts = append(n.alerts, evt)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

func seed(t *testing.T, s *memory.Store, eventID string) {
	t.Helper()
	if _, err := s.Ingest(ctx(), &inbox.Event{
		EventID:   eventID,
		EventType: "user.updated",
		Payload:   json.RawMessage(`{}`),
	}); err != nil {
		t.Fatal(err)
	}
}

func TestMarkFailedBelowThreshold(t *testing.T) {
	s := memory.New()
	seed(t, s, "evt-1")

	n := &recordingNotifier{}
	e := deadletter.NewEscalator(s, n, 3, nil)

	// Insert counted 1; this failure makes 2, below the threshold of 3.
	deadLettered, err := e.MarkFailed(ctx(), "evt-1", errors.New("boom"))
	if err != nil {
		t.Fatal(err)
	}
	if deadLettered {
		t.Fatal("must not dead-letter below threshold")
	}

	evt, err := s.GetEvent(ctx(), "evt-1")
	if err != nil {
		t.Fatal(err)
	}
	if evt.DeadLettered {
		t.Fatal("event dead-lettered early")
	}
	if evt.Attempts != 2 {
		t.Fatalf("expected attempts 2, got %d", evt.Attempts)
	}
	if evt.LastError != "boom" {
		t.Fatalf("got last error %q", evt.LastError)
	}
	if n.count() != 0 {
		t.Fatal("no alert expected below threshold")
	}
}

func TestMarkFailedReachesThreshold(t *testing.T) {
	s := memory.New()
	seed(t, s, "evt-1")

	n := &recordingNotifier{}
	e := deadletter.NewEscalator(s, n, 3, nil)

	// Failures 2 and 3; the third attempt hits the threshold.
	if dl, err := e.MarkFailed(ctx(), "evt-1", errors.New("first")); err != nil || dl {
		t.Fatalf("dl=%v err=%v", dl, err)
	}

	deadLettered, err := e.MarkFailed(ctx(), "evt-1", errors.New("second"))
	if err != nil {
		t.Fatal(err)
	}
	if !deadLettered {
		t.Fatal("expected dead-letter at threshold")
	}

	evt, err := s.GetEvent(ctx(), "evt-1")
	if err != nil {
		t.Fatal(err)
	}
	if !evt.DeadLettered {
		t.Fatal("store must record the dead-letter state")
	}

	if n.count() != 1 {
		t.Fatalf("expected 1 alert, got %d", n.count())
	}
	alert := n.alerts[0]
	if alert.EventID != "evt-1" || alert.Attempts != 3 || !alert.DeadLettered {
		t.Fatalf("alert carries wrong event: %+v", alert)
	}
}

func TestNotifierFailureIsSwallowed(t *testing.T) {
	s := memory.New()
	seed(t, s, "evt-1")

	n := &recordingNotifier{err: errors.New("pager down")}
	e := deadletter.NewEscalator(s, n, 2, nil)

	deadLettered, err := e.MarkFailed(ctx(), "evt-1", errors.New("boom"))
	if err != nil {
		t.Fatalf("notifier failure must not propagate: %v", err)
	}
	if !deadLettered {
		t.Fatal("expected dead-letter despite alert failure")
	}

	evt, err := s.GetEvent(ctx(), "evt-1")
	if err != nil {
		t.Fatal(err)
	}
	if !evt.DeadLettered {
		t.Fatal("dead-letter state must stick even when alerting fails")
	}
}

func TestMarkFailedUnknownEvent(t *testing.T) {
	s := memory.New()
	e := deadletter.NewEscalator(s, nil, 3, nil)

	if _, err := e.MarkFailed(ctx(), "missing", errors.New("boom")); err == nil {
		t.Fatal("expected store error to propagate")
	}
}

func TestNilCauseAllowed(t *testing.T) {
	s := memory.New()
	seed(t, s, "evt-1")

	e := deadletter.NewEscalator(s, nil, 5, nil)
	if _, err := e.MarkFailed(ctx(), "evt-1", nil); err != nil {
		t.Fatal(err)
	}
}
