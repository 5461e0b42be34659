package payload

import (
	"errors"
	"testing"
	"time"
)

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantID   string
		wantType string
	}{
		{
			name:     "snake case",
			raw:      `{"event_id":"evt-1","type":"user.created"}`,
			wantID:   "evt-1",
			wantType: "user.created",
		},
		{
			name:     "camel case",
			raw:      `{"eventId":"evt-2","eventType":"user.updated"}`,
			wantID:   "evt-2",
			wantType: "user.updated",
		},
		{
			name:     "bare id fallback",
			raw:      `{"id":"evt-3","event_type":"user.deleted"}`,
			wantID:   "evt-3",
			wantType: "user.deleted",
		},
		{
			name:     "event_id wins over id",
			raw:      `{"event_id":"evt-4","id":"other"}`,
			wantID:   "evt-4",
			wantType: "",
		},
		{
			name:     "missing everything",
			raw:      `{"data":{}}`,
			wantID:   "",
			wantType: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := ParseEnvelope([]byte(tt.raw))
			if err != nil {
				t.Fatal(err)
			}
			if env.EventID != tt.wantID {
				t.Fatalf("event id = %q, want %q", env.EventID, tt.wantID)
			}
			if env.Type != tt.wantType {
				t.Fatalf("type = %q, want %q", env.Type, tt.wantType)
			}
		})
	}
}

func TestParseEnvelopeRejectsNonObject(t *testing.T) {
	if _, err := ParseEnvelope([]byte(`[1,2]`)); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestExtractShapes(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantUID string
	}{
		{
			name:    "flat envelope",
			raw:     `{"id":"u-1","email":"a@example.com"}`,
			wantUID: "u-1",
		},
		{
			name:    "nested user",
			raw:     `{"event_id":"evt-1","user":{"id":"u-2","name":"Ada"}}`,
			wantUID: "u-2",
		},
		{
			name:    "data.user",
			raw:     `{"data":{"user":{"user_id":"u-3"}}}`,
			wantUID: "u-3",
		},
		{
			name:    "data object",
			raw:     `{"data":{"externalUserId":"u-4"}}`,
			wantUID: "u-4",
		},
		{
			name:    "id on envelope for nested shape",
			raw:     `{"user_id":"u-5","user":{"name":"NoID"}}`,
			wantUID: "u-5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Extract([]byte(tt.raw))
			if err != nil {
				t.Fatal(err)
			}
			if c.ExternalUserID != tt.wantUID {
				t.Fatalf("uid = %q, want %q", c.ExternalUserID, tt.wantUID)
			}
		})
	}
}

func TestExtractMissingIdentity(t *testing.T) {
	_, err := Extract([]byte(`{"event_id":"evt-1","user":{"name":"Ada"}}`))
	if !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("expected ErrMissingIdentity, got %v", err)
	}
}

func TestExtractFieldAliases(t *testing.T) {
	raw := `{"user":{
		"id":"u-1",
		"full_name":"Ada Lovelace",
		"email_address":"ada@example.com",
		"phone_number":"+1555",
		"avatarUrl":"https://example.com/a.png"
	}}`

	c, err := Extract([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if c.Name == nil || *c.Name != "Ada Lovelace" {
		t.Fatalf("name = %v", c.Name)
	}
	if c.Email == nil || *c.Email != "ada@example.com" {
		t.Fatalf("email = %v", c.Email)
	}
	if c.Phone == nil || *c.Phone != "+1555" {
		t.Fatalf("phone = %v", c.Phone)
	}
	if c.AvatarURL == nil || *c.AvatarURL != "https://example.com/a.png" {
		t.Fatalf("avatar = %v", c.AvatarURL)
	}
}

func TestExtractAbsentFieldsStayNil(t *testing.T) {
	c, err := Extract([]byte(`{"user":{"id":"u-1","name":"Ada"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if c.Email != nil || c.Phone != nil || c.AvatarURL != nil {
		t.Fatal("absent fields must be nil, not empty strings")
	}
}

func TestExtractEmptyStringIsPresent(t *testing.T) {
	// An explicit empty string is a present value (a cleared field), not
	// an absent one.
	c, err := Extract([]byte(`{"user":{"id":"u-1","name":""}}`))
	if err != nil {
		t.Fatal(err)
	}
	if c.Name == nil || *c.Name != "" {
		t.Fatalf("name = %v, want empty string", c.Name)
	}
}

func TestOccurredAtPrecedence(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string // RFC3339, empty means nil
	}{
		{
			name: "updated_at wins over created_at",
			raw:  `{"id":"u-1","updated_at":"2026-03-01T12:00:00Z","created_at":"2026-01-01T00:00:00Z"}`,
			want: "2026-03-01T12:00:00Z",
		},
		{
			name: "camel updatedAt",
			raw:  `{"id":"u-1","updatedAt":"2026-03-01T12:00:00Z"}`,
			want: "2026-03-01T12:00:00Z",
		},
		{
			name: "created_at fallback",
			raw:  `{"id":"u-1","created_at":"2026-01-01T00:00:00Z"}`,
			want: "2026-01-01T00:00:00Z",
		},
		{
			name: "user object wins over envelope",
			raw:  `{"updated_at":"2026-05-01T00:00:00Z","user":{"id":"u-1","updated_at":"2026-03-01T12:00:00Z"}}`,
			want: "2026-03-01T12:00:00Z",
		},
		{
			name: "envelope fallback for nested shape",
			raw:  `{"updated_at":"2026-05-01T00:00:00Z","user":{"id":"u-1"}}`,
			want: "2026-05-01T00:00:00Z",
		},
		{
			name: "unix seconds",
			raw:  `{"id":"u-1","updated_at":1772452800}`,
			want: time.Unix(1772452800, 0).UTC().Format(time.RFC3339),
		},
		{
			name: "unparsable timestamp reads as absent",
			raw:  `{"id":"u-1","updated_at":"yesterday-ish"}`,
			want: "",
		},
		{
			name: "no timestamp at all",
			raw:  `{"id":"u-1"}`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Extract([]byte(tt.raw))
			if err != nil {
				t.Fatal(err)
			}

			if tt.want == "" {
				if c.OccurredAt != nil {
					t.Fatalf("expected nil occurred_at, got %v", c.OccurredAt)
				}
				return
			}

			want, err := time.Parse(time.RFC3339, tt.want)
			if err != nil {
				t.Fatal(err)
			}
			if c.OccurredAt == nil || !c.OccurredAt.Equal(want) {
				t.Fatalf("occurred_at = %v, want %v", c.OccurredAt, want)
			}
		})
	}
}

func TestOccurredAtStandalone(t *testing.T) {
	ts := OccurredAt([]byte(`{"user":{"id":"u-1","updated_at":"2026-03-01T12:00:00Z"}}`))
	if ts == nil || ts.Format(time.RFC3339) != "2026-03-01T12:00:00Z" {
		t.Fatalf("got %v", ts)
	}

	if ts := OccurredAt([]byte(`not json`)); ts != nil {
		t.Fatalf("malformed body must read as absent, got %v", ts)
	}
}
