package v1

import (
	"time"

	"github.com/vmunix/cinedb/internal/catalog"
	"github.com/vmunix/cinedb/internal/content"
)

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// listResponse wraps an unpaged entry list.
type listResponse struct {
	Items []content.LightEntry `json:"items"`
	Total int                  `json:"total"`
}

// valuesResponse is the response for GET /distinct/{field}.
type valuesResponse struct {
	Field  string   `json:"field"`
	Values []string `json:"values"`
}

// categoriesResponse is the response for GET /categories.
type categoriesResponse struct {
	Items []catalog.Category `json:"items"`
}

// notFoundResponse is returned by GET /entry when no title matches.
type notFoundResponse struct {
	errorResponse
	Suggestions []catalog.Suggestion `json:"suggestions"`
}

// catalogStatus describes the active artifact as the store sees it.
type catalogStatus struct {
	State      string     `json:"state"`
	Path       string     `json:"path,omitempty"`
	Version    string     `json:"version,omitempty"`
	RowCount   int        `json:"row_count"`
	SizeBytes  int64      `json:"size_bytes"`
	ModifiedAt *time.Time `json:"modified_at,omitempty"`
	OpenedAt   *time.Time `json:"opened_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// updateStatus is the persisted update state.
type updateStatus struct {
	InstalledVersion  string     `json:"installed_version,omitempty"`
	InstalledChecksum string     `json:"installed_checksum,omitempty"`
	InstalledAt       *time.Time `json:"installed_at,omitempty"`
	LastCheck         *time.Time `json:"last_check,omitempty"`
	PendingVersion    string     `json:"pending_version,omitempty"`
}

// statusResponse is the response for GET /status.
type statusResponse struct {
	Status  string        `json:"status"`
	Catalog catalogStatus `json:"catalog"`
	Update  *updateStatus `json:"update,omitempty"`
}

// checkResponse is the response for POST /update/check.
type checkResponse struct {
	Available        bool   `json:"available"`
	Outcome          string `json:"outcome"`
	Reason           string `json:"reason"`
	Mandatory        bool   `json:"mandatory"`
	Version          string `json:"version"`
	SizeBytes        int64  `json:"size_bytes"`
	InstalledVersion string `json:"installed_version,omitempty"`
}

// installRequest is the body of POST /update/install.
type installRequest struct {
	Force bool `json:"force"`
}

// installResponse is the response for POST /update/install.
type installResponse struct {
	Version   string `json:"version,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Installed bool   `json:"installed"`
	Staged    bool   `json:"staged"`
	CanSkip   bool   `json:"can_skip"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
}

// EventResponse is the API representation of a persisted event.
type EventResponse struct {
	ID         int64  `json:"id"`
	EventType  string `json:"event_type"`
	Subject    string `json:"subject"`
	Payload    string `json:"payload"`
	OccurredAt string `json:"occurred_at"`
}

// listEventsResponse is the response for GET /events.
type listEventsResponse struct {
	Items []EventResponse `json:"items"`
	Limit int             `json:"limit"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
