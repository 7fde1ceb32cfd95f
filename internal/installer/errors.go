package installer

import (
	"errors"
	"fmt"
)

var (
	// ErrDownload indicates the artifact transfer failed.
	ErrDownload = errors.New("artifact download failed")

	// ErrSizeMismatch indicates the transfer size differs from the manifest
	// in strict mode. It matches ErrDownload.
	ErrSizeMismatch = fmt.Errorf("%w: size mismatch", ErrDownload)

	// ErrChecksumMismatch indicates the ready-to-install bytes failed verification.
	ErrChecksumMismatch = errors.New("artifact checksum mismatch")

	// ErrInvalidArtifact indicates the payload is not a catalog database or the
	// compressed container is empty or unrecognised.
	ErrInvalidArtifact = errors.New("invalid artifact")

	// ErrIO indicates a local filesystem failure (disk full, permissions, move).
	ErrIO = errors.New("artifact io error")

	// ErrCanceled indicates the caller abandoned the install before activation.
	ErrCanceled = errors.New("install canceled")

	// ErrNoPending indicates there is no staged artifact to activate.
	ErrNoPending = errors.New("no pending artifact")
)

// ChecksumError reports the expected and computed digests.
type ChecksumError struct {
	Expected string
	Actual   string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("artifact checksum mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// Unwrap makes ChecksumError match ErrChecksumMismatch.
func (e *ChecksumError) Unwrap() error { return ErrChecksumMismatch }
