// Package projection holds the materialized "current state" view of external
// identities, derived by folding the inbox event stream. The projector is the
// only writer; downstream code reads it directly.
package projection

import (
	"time"

	"github.com/nexlead/prism/internal/entity"
)

// User is one record per external identity.
//
// Deletion is a tombstone, not a row removal: the record survives with its
// identity key so downstream joins and audit remain possible, but every PII
// field is unset.
type User struct {
	entity.Entity

	// ExternalUserID is the provider-assigned identity and the unique key.
	ExternalUserID string `json:"external_user_id"`

	// Profile fields. All optional; any may be scrubbed.
	Name      *string `json:"name,omitempty"`
	Email     *string `json:"email,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`

	// Deleted marks the tombstone state.
	Deleted   bool       `json:"deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	// PIIScrubbed records that profile fields were unset on deletion.
	PIIScrubbed bool `json:"pii_scrubbed"`

	// LastEventOccurredAt is the high-water mark for the out-of-order
	// guard: a write is accepted only if its event occurred at or after
	// this instant (or carries no timestamp at all).
	LastEventOccurredAt *time.Time `json:"last_event_occurred_at,omitempty"`
}

// Upsert is a guarded write of the profile fields extracted from one event.
// Nil fields are absent from the source payload and must never overwrite
// existing data.
type Upsert struct {
	ExternalUserID string
	Name           *string
	Email          *string
	Phone          *string
	AvatarURL      *string

	// OccurredAt is the event's timestamp. Nil means the event carried no
	// usable timestamp and the write applies unconditionally, without
	// advancing the high-water mark.
	OccurredAt *time.Time
}

// Tombstone is a guarded deletion marker for one external identity.
type Tombstone struct {
	ExternalUserID string
	DeletedAt      time.Time
	OccurredAt     *time.Time
}

// ListOpts configures filtering and pagination for projection listing.
type ListOpts struct {
	Offset  int
	Limit   int
	Deleted *bool
}
