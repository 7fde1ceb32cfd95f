package events

// Subjects
const (
	SubjectManifest = "manifest"
	SubjectArtifact = "artifact"
	SubjectCatalog  = "catalog"
)

// Event type constants
const (
	EventManifestChecked   = "manifest.checked"
	EventCheckFailed       = "manifest.check_failed"
	EventUpdateAvailable   = "update.available"
	EventUpdateDeclined    = "update.declined"
	EventArtifactStaged    = "artifact.staged"
	EventArtifactActivated = "artifact.activated"
	EventArtifactRestored  = "artifact.restored"
	EventInstallFailed     = "install.failed"
	EventCatalogReloaded   = "catalog.reloaded"
)

// ManifestChecked is emitted after every successful manifest fetch.
type ManifestChecked struct {
	BaseEvent
	Version  string `json:"version"`
	Checksum string `json:"checksum"`
	Outcome  string `json:"outcome"`
	Reason   string `json:"reason"`
}

// CheckFailed is emitted when the manifest could not be fetched or parsed.
type CheckFailed struct {
	BaseEvent
	Error string `json:"error"`
}

// UpdateAvailable is emitted when the policy decides an install is needed.
type UpdateAvailable struct {
	BaseEvent
	Version   string `json:"version"`
	SizeBytes int64  `json:"size_bytes"`
	Reason    string `json:"reason"`
	Mandatory bool   `json:"mandatory"`
}

// UpdateDeclined is emitted when the confirmation prompt said no.
type UpdateDeclined struct {
	BaseEvent
	Version string `json:"version"`
}

// ArtifactStaged is emitted when a verified artifact is staged for later activation.
type ArtifactStaged struct {
	BaseEvent
	Version  string `json:"version"`
	Checksum string `json:"checksum"`
	Path     string `json:"path"`
}

// ArtifactActivated is emitted when a new artifact becomes the active one.
type ArtifactActivated struct {
	BaseEvent
	Version  string `json:"version"`
	Checksum string `json:"checksum"`
	Path     string `json:"path"`
	Bytes    int64  `json:"bytes"`
}

// ArtifactRestored is emitted when a backup is moved back after an interrupted activation.
type ArtifactRestored struct {
	BaseEvent
	Path string `json:"path"`
}

// InstallFailed is emitted when an install or activation aborts.
type InstallFailed struct {
	BaseEvent
	Version string `json:"version"`
	Error   string `json:"error"`
}

// CatalogReloaded is emitted when the store re-opened against a new artifact.
type CatalogReloaded struct {
	BaseEvent
	Path     string `json:"path"`
	RowCount int    `json:"row_count"`
}
