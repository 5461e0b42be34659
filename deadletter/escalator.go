package deadletter

import (
	"context"
	"log/slog"

	"github.com/nexlead/prism/inbox"
)

// Store is the slice of the inbox the escalator mutates.
type Store interface {
	MarkFailed(ctx context.Context, eventID, cause string) (*inbox.Event, error)
	MarkDeadLettered(ctx context.Context, eventID string) error
}

// Escalator applies the per-event failure policy: release the claim, record
// the error, and dead-letter once the attempts counter reaches the
// threshold.
type Escalator struct {
	store     Store
	notifier  Notifier
	threshold int
	logger    *slog.Logger
}

// NewEscalator creates an escalator. threshold is the attempts count at
// which an event is dead-lettered; notifier may be nil for no alerting.
func NewEscalator(store Store, notifier Notifier, threshold int, logger *slog.Logger) *Escalator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Escalator{
		store:     store,
		notifier:  notifier,
		threshold: threshold,
		logger:    logger,
	}
}

// MarkFailed records one handler failure. The event returns to the
// unclaimed pool; once its attempts counter reaches the threshold it is
// dead-lettered instead and an alert is fired. Alert failures are logged
// and swallowed, never propagated.
//
// Returns true when the event was dead-lettered by this call.
func (e *Escalator) MarkFailed(ctx context.Context, eventID string, cause error) (bool, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	evt, err := e.store.MarkFailed(ctx, eventID, msg)
	if err != nil {
		return false, err
	}

	e.logger.WarnContext(ctx, "event apply failed",
		"event_id", eventID,
		"event_type", evt.EventType,
		"attempts", evt.Attempts,
		"error", msg,
	)

	if evt.Attempts < e.threshold {
		return false, nil
	}

	if err := e.store.MarkDeadLettered(ctx, eventID); err != nil {
		return false, err
	}
	evt.DeadLettered = true

	e.logger.ErrorContext(ctx, "event dead-lettered",
		"event_id", eventID,
		"event_type", evt.EventType,
		"attempts", evt.Attempts,
	)

	if notifyErr := e.notifier.NotifyDeadLetter(ctx, evt); notifyErr != nil {
		e.logger.ErrorContext(ctx, "dead-letter alert failed",
			"event_id", eventID, "error", notifyErr)
	}

	return true, nil
}
