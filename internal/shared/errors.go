package shared

import "errors"

// Coarse error kinds surfaced to the API boundary. Domain packages wrap one of
// these with a specific sentinel so callers can match either.
var (
	// ErrValidation indicates the request was rejected before persistence.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the request collides with already stored state.
	ErrConflict = errors.New("conflict")
	// ErrInternal indicates a persistence failure or a broken invariant.
	ErrInternal = errors.New("internal error")
)
