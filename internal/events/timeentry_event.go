package events

import (
	"time"
)

// TargetRef references a domain object a time entry should be mirrored to.
// The title is a display hint only, never the system of record.
type TargetRef struct {
	Type        EntityType `json:"type"`
	EntityID    string     `json:"entityId"`
	EntityTitle string     `json:"entityTitle,omitempty"`
}

// Key returns the unique badge key for this target.
func (t TargetRef) Key() string {
	return t.EntityID + "/" + string(t.Type)
}

// TimeEntryCreatedEvent is published by the intake endpoint after a time
// entry has been durably persisted. The mirroring consumers fan it out to
// every target entity.
type TimeEntryCreatedEvent struct {
	TimeEntryID     string
	TrackingID      string
	UserID          string
	DurationMinutes int
	Description     string
	OccurredAt      time.Time
	Targets         []TargetRef
	CorrelationID   string
	EmittedAt       time.Time
}

// EventName implements Event.
func (e *TimeEntryCreatedEvent) EventName() string {
	return "time-entry-created"
}

// GetCorrelationID implements Event.
func (e *TimeEntryCreatedEvent) GetCorrelationID() string {
	return e.CorrelationID
}

// GetTimestamp implements Event.
func (e *TimeEntryCreatedEvent) GetTimestamp() time.Time {
	return e.EmittedAt
}

// TargetsOfType returns the subset of targets with the given entity type.
func (e *TimeEntryCreatedEvent) TargetsOfType(entityType EntityType) []TargetRef {
	var out []TargetRef
	for _, t := range e.Targets {
		if t.Type == entityType {
			out = append(out, t)
		}
	}
	return out
}
