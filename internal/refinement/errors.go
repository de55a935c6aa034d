package refinement

import "errors"

var (
	// ErrValidation marks caller misuse. The session is left untouched.
	ErrValidation = errors.New("validation error")
	// ErrTransport marks a failed prediction request. Safe to retry.
	ErrTransport = errors.New("prediction transport error")
	// ErrProtocol marks a prediction reply matching none of the known shapes.
	ErrProtocol = errors.New("prediction protocol error")
	// ErrSessionBusy is returned when another operation is still in flight.
	ErrSessionBusy = errors.New("session busy")
	// ErrStaleResponse is returned when the session was reset while the
	// prediction was outstanding; the reply has been discarded.
	ErrStaleResponse = errors.New("stale prediction response")
)
