// Package payload is the adapter between provider webhook payload shapes and
// Prism's canonical event fields. Providers drift between snake_case and
// camelCase keys and between nested and flat shapes; every fallback lives
// here, behind one tested boundary, instead of scattered through handler
// logic.
package payload

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMissingIdentity is returned when no external user id can be found in
// any recognized location. This is a handler-level failure: the event stays
// in the inbox and retries up to the dead-letter threshold.
var ErrMissingIdentity = errors.New("payload: external user id missing")

// Envelope is the transport-level identity of a webhook delivery, read from
// the outermost object.
type Envelope struct {
	// EventID is the provider-assigned event identity, empty when the
	// payload carries none (the caller falls back to the delivery id).
	EventID string

	// Type is the raw event type string, empty when absent.
	Type string
}

// Canonical is the provider-independent view of an identity event's fields.
// Pointer fields are nil when absent from the source; absent fields must
// never overwrite existing projection data.
type Canonical struct {
	ExternalUserID string
	Name           *string
	Email          *string
	Phone          *string
	AvatarURL      *string

	// OccurredAt is the provider's change timestamp, nil when the payload
	// carries none in any recognized field.
	OccurredAt *time.Time
}

// ParseEnvelope reads the event id and type from a raw webhook body.
//
// Event id precedence: "event_id", "eventId", then top-level "id".
// Type precedence: "type", "event_type", "eventType".
func ParseEnvelope(raw []byte) (Envelope, error) {
	obj, err := decode(raw)
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{
		EventID: firstString(obj, "event_id", "eventId", "id"),
		Type:    firstString(obj, "type", "event_type", "eventType"),
	}, nil
}

// Extract maps a raw webhook body to canonical identity fields.
//
// The user object is located at the first of: nested "user", nested
// "data.user", nested "data", or the envelope itself. Within it:
//
//	id:     "id" → "user_id" → "userId" → "external_user_id" → "externalUserId"
//	name:   "name" → "full_name" → "fullName"
//	email:  "email" → "email_address" → "emailAddress"
//	phone:  "phone" → "phone_number" → "phoneNumber"
//	avatar: "avatar_url" → "avatarUrl" → "avatar"
//
// OccurredAt precedence, pinned by tests: "updated_at", then "updatedAt",
// then "created_at", then "createdAt", checked on the user object first
// and the envelope second.
// Timestamps are RFC3339 strings or unix seconds; anything else reads as
// absent rather than failing the event.
func Extract(raw []byte) (Canonical, error) {
	obj, err := decode(raw)
	if err != nil {
		return Canonical{}, err
	}

	user := userObject(obj)

	uid := firstString(user, "id", "user_id", "userId", "external_user_id", "externalUserId")
	if uid == "" && !sameObject(user, obj) {
		// A nested shape without an id sometimes carries it on the
		// envelope instead.
		uid = firstString(obj, "user_id", "userId", "external_user_id", "externalUserId")
	}
	if uid == "" {
		return Canonical{}, ErrMissingIdentity
	}

	c := Canonical{
		ExternalUserID: uid,
		Name:           firstStringPtr(user, "name", "full_name", "fullName"),
		Email:          firstStringPtr(user, "email", "email_address", "emailAddress"),
		Phone:          firstStringPtr(user, "phone", "phone_number", "phoneNumber"),
		AvatarURL:      firstStringPtr(user, "avatar_url", "avatarUrl", "avatar"),
	}

	if ts := firstTime(user, timestampKeys...); ts != nil {
		c.OccurredAt = ts
	} else if !sameObject(user, obj) {
		c.OccurredAt = firstTime(obj, timestampKeys...)
	}

	return c, nil
}

// OccurredAt reads only the change timestamp from a raw body, using the same
// precedence as Extract. Used at ingest time before any handler runs.
func OccurredAt(raw []byte) *time.Time {
	obj, err := decode(raw)
	if err != nil {
		return nil
	}

	user := userObject(obj)
	if ts := firstTime(user, timestampKeys...); ts != nil {
		return ts
	}
	if !sameObject(user, obj) {
		return firstTime(obj, timestampKeys...)
	}
	return nil
}

var timestampKeys = []string{"updated_at", "updatedAt", "created_at", "createdAt"}

func decode(raw []byte) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("payload: decode: %w", err)
	}
	return obj, nil
}

// userObject returns the object the profile fields live on.
func userObject(obj map[string]any) map[string]any {
	if u, ok := obj["user"].(map[string]any); ok {
		return u
	}
	if d, ok := obj["data"].(map[string]any); ok {
		if u, ok := d["user"].(map[string]any); ok {
			return u
		}
		return d
	}
	return obj
}

func sameObject(a, b map[string]any) bool {
	// Map identity via a marker probe would be overkill; the two are only
	// ever aliases when userObject fell through to the envelope itself,
	// which len+one-key equality identifies well enough for fallbacks.
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstStringPtr(obj map[string]any, keys ...string) *string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok {
			v := s
			return &v
		}
	}
	return nil
}

func firstTime(obj map[string]any, keys ...string) *time.Time {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok {
			continue
		}

		switch t := v.(type) {
		case string:
			if parsed, err := time.Parse(time.RFC3339, t); err == nil {
				utc := parsed.UTC()
				return &utc
			}
		case float64:
			utc := time.Unix(int64(t), 0).UTC()
			return &utc
		}
	}
	return nil
}
