package events

import (
	"time"
)

// MirroringSignal reports mirroring progress for one (time entry, target)
// pair. Signals may arrive out of order relative to other targets of the
// same entry and may be delivered more than once; receivers must treat
// them idempotently.
type MirroringSignal struct {
	EntityID      string       `json:"entityId"`
	EntityType    EntityType   `json:"entityType"`
	TimeEntryID   string       `json:"timeEntryId,omitempty"`
	TrackingID    string       `json:"trackingId,omitempty"`
	Status        MirrorStatus `json:"status"`
	Message       string       `json:"message,omitempty"`
	CorrelationID string       `json:"correlationId,omitempty"`
	EmittedAt     time.Time    `json:"emittedAt"`
}

// EventName implements Event.
func (s *MirroringSignal) EventName() string {
	return "mirroring-signal"
}

// GetCorrelationID implements Event.
func (s *MirroringSignal) GetCorrelationID() string {
	return s.CorrelationID
}

// GetTimestamp implements Event.
func (s *MirroringSignal) GetTimestamp() time.Time {
	return s.EmittedAt
}
