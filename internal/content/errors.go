package content

import "errors"

var (
	// ErrMissingTitle indicates an entry without the required title.
	ErrMissingTitle = errors.New("entry has no title")

	// ErrPayload indicates an embedded JSON payload could not be decoded.
	ErrPayload = errors.New("invalid embedded payload")
)
