package prism

import "errors"

// Sentinel errors returned by Prism operations.
var (
	// ErrNoStore is returned when a Prism is created without a store.
	ErrNoStore = errors.New("prism: store is required")

	// ErrEventNotFound is returned when an inbox event cannot be found.
	ErrEventNotFound = errors.New("prism: inbox event not found")

	// ErrUserNotFound is returned when a projected user cannot be found.
	ErrUserNotFound = errors.New("prism: projected user not found")

	// ErrNotDeadLettered is returned when replaying an event that is not
	// in the dead-letter state.
	ErrNotDeadLettered = errors.New("prism: event is not dead-lettered")

	// ErrStoreClosed is returned when a store operation is attempted
	// after the store is closed.
	ErrStoreClosed = errors.New("prism: store is closed")

	// ErrPayloadTooLarge is returned when a webhook body exceeds the
	// configured size cap.
	ErrPayloadTooLarge = errors.New("prism: payload too large")

	// ErrMissingEventID is returned when neither the payload nor the
	// delivery headers carry an event identity.
	ErrMissingEventID = errors.New("prism: event id missing")

	// ErrMalformedPayload is returned when a webhook body is not a JSON
	// object. Retrying the same delivery cannot succeed.
	ErrMalformedPayload = errors.New("prism: malformed payload")

	// ErrSchemaViolation is returned when a payload fails its registered
	// type schema. Retrying the same delivery cannot succeed.
	ErrSchemaViolation = errors.New("prism: payload schema violation")
)
