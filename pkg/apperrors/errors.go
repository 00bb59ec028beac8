package apperrors

import "errors"

var (
	// ErrNotFound signals that a topic, note or member does not exist or is
	// not owned by the caller.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput signals malformed ids, unparseable timestamps or
	// missing required fields. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized signals a request without an authenticated owner.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict signals a uniqueness violation the caller can resolve.
	ErrConflict = errors.New("conflict")

	// ErrUpstream signals a structured-generation collaborator failure or a
	// malformed collaborator response.
	ErrUpstream = errors.New("upstream failure")
)
