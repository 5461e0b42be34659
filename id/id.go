// Package id defines TypeID-based identity types for Prism records.
//
// Provider-assigned identifiers (the webhook event id, the external user id)
// are opaque strings owned by the provider. Everything Prism mints itself uses
// a TypeID: a prefix-qualified, K-sortable (UUIDv7-based), URL-safe identifier
// in the format "prefix_suffix".
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the record type encoded in a TypeID.
type Prefix string

// Prefix constants for Prism record types.
const (
	// PrefixInboxRecord is the storage identity of an inbox event record.
	// Distinct from the provider event id, which is the dedup key.
	PrefixInboxRecord Prefix = "ine"

	// PrefixCycle identifies one projector cycle, used for log correlation.
	PrefixCycle Prefix = "run"

	// PrefixAlert identifies a dead-letter alert notification.
	PrefixAlert Prefix = "alrt"
)

// ID is the identifier type for Prism-minted records.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string (e.g., "ine_01h455vb4pex5vsknk084sn02q")
// into an ID. Returns an error if the string is not valid.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// NewInboxRecordID generates a new unique inbox record ID.
func NewInboxRecordID() ID { return New(PrefixInboxRecord) }

// NewCycleID generates a new unique projector cycle ID.
func NewCycleID() ID { return New(PrefixCycle) }

// NewAlertID generates a new unique alert ID.
func NewAlertID() ID { return New(PrefixAlert) }

// String returns the full TypeID string representation (prefix_suffix).
// Returns an empty string for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}
