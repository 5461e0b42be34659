// Package deadletter escalates poison events: it tracks per-event attempt
// counts on failure and, at the configured threshold, parks the event in the
// dead-letter state and fires a best-effort external alert.
package deadletter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nexlead/prism/id"
	"github.com/nexlead/prism/inbox"
)

// Notifier delivers low-volume dead-letter alerts to an external channel.
// Implementations must be safe to call concurrently. Delivery is best
// effort: the escalator logs and swallows notifier errors so alerting can
// never become a cascading failure source.
type Notifier interface {
	NotifyDeadLetter(ctx context.Context, evt *inbox.Event) error
}

// NopNotifier discards alerts. The default when no channel is configured.
type NopNotifier struct{}

// NotifyDeadLetter implements Notifier.
func (NopNotifier) NotifyDeadLetter(context.Context, *inbox.Event) error { return nil }

// WebhookNotifier posts a JSON alert to an external HTTP endpoint
// (chat-ops hook, pager bridge, or similar).
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a notifier targeting the given URL with the
// given per-alert timeout.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type alertBody struct {
	AlertID   string    `json:"alert_id"`
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	FailedAt  time.Time `json:"failed_at"`
}

// NotifyDeadLetter implements Notifier.
func (n *WebhookNotifier) NotifyDeadLetter(ctx context.Context, evt *inbox.Event) error {
	body, err := json.Marshal(alertBody{
		AlertID:   id.NewAlertID().String(),
		EventID:   evt.EventID,
		EventType: evt.EventType,
		Attempts:  evt.Attempts,
		LastError: evt.LastError,
		FailedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("deadletter: marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("deadletter: build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deadletter: post alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("deadletter: alert endpoint returned %d", resp.StatusCode)
	}

	return nil
}
