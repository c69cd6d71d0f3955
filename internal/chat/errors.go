package chat

import "errors"

// Send-path error taxonomy. Handlers map these to distinct user-facing
// responses; in every failure case the caller keeps the typed text.
var (
	// ErrValidation: rejected before any network call (empty text, missing
	// counterpart).
	ErrValidation = errors.New("invalid message")

	// ErrRouteResolution: the receiver identity could not be determined.
	// Fatal to the send and surfaced distinctly ("recipient not found").
	ErrRouteResolution = errors.New("recipient not found")

	// ErrPersistence: the store rejected the insert. No local state was
	// mutated.
	ErrPersistence = errors.New("message could not be saved")
)
