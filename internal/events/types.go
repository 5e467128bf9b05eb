// Package events provides an asynchronous event bus for decoupling
// time-entry intake from the mirroring propagator and its observers.
package events

import (
	"time"
)

// EntityType identifies the kind of domain object a time entry targets.
type EntityType string

const (
	EntityIncident EntityType = "INCIDENT"
	EntityTask     EntityType = "TASK"
	EntityProject  EntityType = "PROJECT"
)

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityIncident, EntityTask, EntityProject:
		return true
	}
	return false
}

// MirrorStatus is the per-target mirroring progress state.
type MirrorStatus string

const (
	MirrorPending   MirrorStatus = "PENDING"
	MirrorMirroring MirrorStatus = "MIRRORING"
	MirrorCompleted MirrorStatus = "COMPLETED"
	MirrorFailed    MirrorStatus = "FAILED"
)

// Terminal reports whether s is a terminal mirroring state.
func (s MirrorStatus) Terminal() bool {
	return s == MirrorCompleted || s == MirrorFailed
}

// rank orders statuses for monotonic progression checks.
// Terminal states share the highest rank so neither overwrites the other.
func (s MirrorStatus) rank() int {
	switch s {
	case MirrorPending:
		return 0
	case MirrorMirroring:
		return 1
	case MirrorCompleted, MirrorFailed:
		return 2
	}
	return -1
}

// AdvancesOver reports whether applying s on top of prev moves the state
// forward. Equal-rank terminal transitions do not advance, which makes
// repeated COMPLETED signals idempotent.
func (s MirrorStatus) AdvancesOver(prev MirrorStatus) bool {
	return s.rank() > prev.rank()
}

// Event is the common shape of everything published on the bus.
type Event interface {
	// EventName returns a short type name for logging
	EventName() string

	// GetCorrelationID returns the request correlation identifier
	GetCorrelationID() string

	// GetTimestamp returns when the event was emitted
	GetTimestamp() time.Time
}

// Consumer processes events delivered by the bus workers.
type Consumer interface {
	// Name returns the consumer name for identification
	Name() string

	// ProcessEvent processes a single event. Consumers receive every
	// published event and are expected to ignore types they do not handle.
	ProcessEvent(event Event) error
}

// BusStats contains runtime statistics for monitoring
type BusStats struct {
	EventsReceived  uint64
	EventsProcessed uint64
	EventsDropped   uint64
	ConsumerErrors  uint64
}
