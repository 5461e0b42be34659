package projection

import "context"

// Store is the persistence interface for the materialized user view.
//
// Both write operations carry the out-of-order guard: the write is accepted
// only if the incoming event's OccurredAt is at or after the stored
// high-water mark, the record does not yet exist, or the event has no
// timestamp. The guard is what makes cross-worker processing order
// irrelevant: a stale write degrades to a no-op instead of regressing the
// view.
type Store interface {
	// ApplyUpsert creates or updates a user record, writing only the
	// fields present in the upsert. Returns false when the write was
	// rejected as stale.
	ApplyUpsert(ctx context.Context, up Upsert) (bool, error)

	// ApplyTombstone marks a user deleted and unsets every PII field,
	// retaining the identity key and the deletion time. Returns false
	// when the write was rejected as stale. Tombstoning an unknown user
	// creates the tombstone record.
	ApplyTombstone(ctx context.Context, ts Tombstone) (bool, error)

	// GetUser returns a user by external id.
	GetUser(ctx context.Context, externalUserID string) (*User, error)

	// ListUsers returns projected users matching the given options.
	ListUsers(ctx context.Context, opts ListOpts) ([]*User, error)
}
