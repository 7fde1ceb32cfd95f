package manifest

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork indicates the manifest could not be retrieved
	// (connect/read timeout, DNS failure, non-2xx status).
	ErrNetwork = errors.New("manifest network error")

	// ErrParse indicates the manifest body could not be decoded.
	ErrParse = errors.New("manifest parse error")
)

// StatusError is returned for non-2xx manifest responses.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("manifest request failed: %s", e.Status)
}

// Unwrap makes StatusError match ErrNetwork.
func (e *StatusError) Unwrap() error { return ErrNetwork }
