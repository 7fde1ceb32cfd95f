package events

import (
	"encoding/json"
	"fmt"
)

// EventFactory creates a new zero-value event of a specific type.
type EventFactory func() Event

// Registry maps event types to their factories for deserialization.
type Registry struct {
	factories map[string]EventFactory
}

// NewRegistry creates a new event registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]EventFactory),
	}
}

// Register adds an event type to the registry.
func (r *Registry) Register(eventType string, factory EventFactory) {
	r.factories[eventType] = factory
}

// Unmarshal deserializes a raw event into its concrete type.
func (r *Registry) Unmarshal(raw RawEvent) (Event, error) {
	factory, ok := r.factories[raw.EventType]
	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", raw.EventType)
	}

	event := factory()
	if err := json.Unmarshal([]byte(raw.Payload), event); err != nil {
		return nil, fmt.Errorf("unmarshal event payload: %w", err)
	}

	return event, nil
}

// DefaultRegistry returns a registry with all lifecycle event types registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(EventManifestChecked, func() Event { return &ManifestChecked{} })
	r.Register(EventCheckFailed, func() Event { return &CheckFailed{} })
	r.Register(EventUpdateAvailable, func() Event { return &UpdateAvailable{} })
	r.Register(EventUpdateDeclined, func() Event { return &UpdateDeclined{} })
	r.Register(EventArtifactStaged, func() Event { return &ArtifactStaged{} })
	r.Register(EventArtifactActivated, func() Event { return &ArtifactActivated{} })
	r.Register(EventArtifactRestored, func() Event { return &ArtifactRestored{} })
	r.Register(EventInstallFailed, func() Event { return &InstallFailed{} })
	r.Register(EventCatalogReloaded, func() Event { return &CatalogReloaded{} })

	return r
}
