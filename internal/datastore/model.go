// model.go this code defines the data model for the application
package datastore

import "time"

// Time entry lifecycle states as persisted server-side. The client-only
// OPTIMISTIC state never reaches the database.
const (
	StatusDraft     = "DRAFT"
	StatusConfirmed = "CONFIRMED"
	StatusMirroring = "MIRRORING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// TimeEntry represents a unit of logged work.
type TimeEntry struct {
	ID              string `gorm:"primaryKey;type:varchar(36)"`
	UserID          string `gorm:"index:idx_time_entries_user"`
	DurationMinutes int    `gorm:"not null"`
	Description     string `gorm:"type:varchar(500);not null"`
	OccurredAt      time.Time
	Status          string    `gorm:"type:varchar(20);index:idx_time_entries_status"`
	TrackingID      string    `gorm:"type:varchar(36);index:idx_time_entries_tracking"`
	CorrelationID   string    `gorm:"type:varchar(64)"`
	ErrorMessage    string    `gorm:"type:text"`
	CreatedAt       time.Time `gorm:"index"`
	UpdatedAt       time.Time

	Targets []TimeEntryTarget `gorm:"foreignKey:TimeEntryID;constraint:OnDelete:CASCADE"`
}

// TimeEntryTarget links a time entry to one target entity. The entity is
// referenced by identifier only; its own record lives outside this module.
type TimeEntryTarget struct {
	ID          uint   `gorm:"primaryKey"`
	TimeEntryID string `gorm:"index;not null;type:varchar(36)"`
	EntityType  string `gorm:"type:varchar(20);not null"`
	EntityID    string `gorm:"index;not null"`
	EntityTitle string // display hint from the client, never authoritative
}

// Worklog is the mirrored fact written onto a target entity by the
// mirroring propagator. The composite unique index makes mirroring
// idempotent per (time entry, target) pair.
type Worklog struct {
	ID              uint   `gorm:"primaryKey"`
	TimeEntryID     string `gorm:"uniqueIndex:idx_worklogs_entry_target;type:varchar(36);not null"`
	EntityType      string `gorm:"uniqueIndex:idx_worklogs_entry_target;type:varchar(20);not null"`
	EntityID        string `gorm:"uniqueIndex:idx_worklogs_entry_target;not null"`
	UserID          string
	DurationMinutes int
	Description     string `gorm:"type:varchar(500)"`
	OccurredAt      time.Time
	MirroredAt      time.Time `gorm:"index"`
}

// ProcessedEvent records that a consumer has handled an event, keyed by
// (event id, consumer name). Duplicate deliveries become no-ops.
type ProcessedEvent struct {
	ID            uint   `gorm:"primaryKey"`
	EventKey      string `gorm:"uniqueIndex;type:varchar(128);not null"`
	EventType     string `gorm:"type:varchar(64)"`
	CorrelationID string `gorm:"type:varchar(64)"`
	ProcessedAt   time.Time
}
