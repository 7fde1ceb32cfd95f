package catalog

import "errors"

var (
	// ErrNotFound indicates the requested entry doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrNotReady indicates the store is validating or re-opening.
	// Callers should retry shortly.
	ErrNotReady = errors.New("catalog not ready")

	// ErrMissing indicates no artifact exists at the active path.
	ErrMissing = errors.New("catalog artifact missing")

	// ErrCorrupt indicates the artifact is unreadable or lacks required tables.
	// Recovery is a reinstall; the store never repairs in place.
	ErrCorrupt = errors.New("catalog artifact corrupt")

	// ErrClosed indicates the store was closed.
	ErrClosed = errors.New("catalog closed")

	// ErrInvalidPage indicates a negative page or non-positive page size.
	ErrInvalidPage = errors.New("invalid page request")

	// ErrInvalidField indicates an unsupported distinct-values field.
	ErrInvalidField = errors.New("invalid field")
)
