// Package events provides an in-process bus for catalog lifecycle events.
package events

import "time"

// Event is the base interface all events implement.
type Event interface {
	EventType() string
	Subject() string // "manifest", "artifact", "catalog"
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	Type      string    `json:"type"`
	Subj      string    `json:"subject"`
	Timestamp time.Time `json:"occurred_at"`
}

func (e BaseEvent) EventType() string     { return e.Type }
func (e BaseEvent) Subject() string       { return e.Subj }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// NewBaseEvent creates a BaseEvent with the current timestamp.
func NewBaseEvent(eventType, subject string) BaseEvent {
	return BaseEvent{
		Type:      eventType,
		Subj:      subject,
		Timestamp: time.Now(),
	}
}
