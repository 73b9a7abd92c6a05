package domain

import "errors"

var (
	// ErrNotFound indicates a requested resource was not found.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates the operation conflicts with the current state.
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates invalid input data.
	ErrInvalidInput = errors.New("invalid input")

	// ErrBusy indicates the session already has a model request in flight.
	ErrBusy = errors.New("request in flight")

	// ErrErrorPending indicates the session error slot must be dismissed
	// before further mutations are accepted.
	ErrErrorPending = errors.New("error pending dismissal")

	// ErrMalformedResponse indicates the model returned output that does not
	// match the documented shape.
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrNotConfigured indicates the model API credential is missing.
	ErrNotConfigured = errors.New("model service not configured")
)
