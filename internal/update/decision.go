// Package update decides when a new catalog artifact should be installed and
// drives the installer accordingly.
package update

import (
	"github.com/vmunix/cinedb/internal/integrity"
	"github.com/vmunix/cinedb/internal/manifest"
	"github.com/vmunix/cinedb/internal/state"
)

// Outcome is the result of comparing local state with a manifest.
type Outcome string

const (
	NoUpdate        Outcome = "no_update"
	UpdateAvailable Outcome = "update_available"
)

// Reason explains an Outcome.
type Reason string

const (
	ReasonFirstInstall    Reason = "first_install"
	ReasonStateCorrupted  Reason = "state_corrupted"
	ReasonArtifactMissing Reason = "artifact_missing"
	ReasonArtifactCorrupt Reason = "artifact_corrupt"
	ReasonNewVersion      Reason = "new_version"
	ReasonContentChanged  Reason = "content_changed"
	ReasonUpToDate        Reason = "up_to_date"
)

// Decision is the policy verdict for one manifest.
type Decision struct {
	Outcome Outcome
	Reason  Reason
	// Mandatory is set when no usable artifact exists locally, so the
	// application cannot proceed without installing.
	Mandatory bool
}

// Available reports whether an install is recommended.
func (d Decision) Available() bool { return d.Outcome == UpdateAvailable }

// Decide compares the persisted state and the presence of the active artifact
// with m. Checksums compare case-insensitively.
func Decide(local state.UpdateState, m *manifest.Manifest, artifactPresent bool) Decision {
	switch {
	case local.IsEmpty() && !artifactPresent:
		return Decision{Outcome: UpdateAvailable, Reason: ReasonFirstInstall, Mandatory: true}
	case local.IsEmpty():
		return Decision{Outcome: UpdateAvailable, Reason: ReasonStateCorrupted}
	case !artifactPresent:
		return Decision{Outcome: UpdateAvailable, Reason: ReasonArtifactMissing, Mandatory: true}
	case local.InstalledVersion != m.Version:
		return Decision{Outcome: UpdateAvailable, Reason: ReasonNewVersion}
	case !integrity.Equal(local.InstalledChecksum, m.Checksum):
		return Decision{Outcome: UpdateAvailable, Reason: ReasonContentChanged}
	}
	return Decision{Outcome: NoUpdate, Reason: ReasonUpToDate}
}

// corrupt is the verdict when the active artifact fails validation.
func corrupt() Decision {
	return Decision{Outcome: UpdateAvailable, Reason: ReasonArtifactCorrupt, Mandatory: true}
}
