// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/monosense-io/synergyflow/internal/conf"
	"github.com/monosense-io/synergyflow/internal/errors"
)

// ErrTimeEntryNotFound is returned when a lookup by id finds nothing.
var ErrTimeEntryNotFound = errors.NewStd("time entry not found")

// Interface abstracts the underlying database implementation and defines
// the operations the rest of the application may perform.
type Interface interface {
	Open() error
	Close() error

	// SaveTimeEntries persists one or more time entries with their targets
	// in a single transaction. Either every entry becomes durable or none.
	SaveTimeEntries(entries []*TimeEntry) error
	GetTimeEntry(id string) (TimeEntry, error)
	GetTimeEntriesByUser(userID string) ([]TimeEntry, error)

	// AdvanceTimeEntryStatus moves an entry's lifecycle status forward.
	// A write that would regress the status, or flip one terminal state
	// into the other, is a silent no-op.
	AdvanceTimeEntryStatus(id, status, errorMessage string) error

	SaveWorklog(worklog *Worklog) error
	GetWorklogsForEntity(entityType, entityID string) ([]Worklog, error)
	CountWorklogsForEntry(timeEntryID string) (int64, error)

	IsEventProcessed(eventKey string) (bool, error)
	MarkEventProcessed(processed *ProcessedEvent) error
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore instance based on the provided configuration.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		return nil
	}
}

// SaveTimeEntries stores the given entries and their targets as a single
// transaction.
func (ds *DataStore) SaveTimeEntries(entries []*TimeEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx := ds.DB.Begin()
	if tx.Error != nil {
		return fmt.Errorf("starting transaction: %w", tx.Error)
	}

	// Roll back the transaction if a panic occurs
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	for _, entry := range entries {
		if err := tx.Create(entry).Error; err != nil {
			tx.Rollback()
			return errors.New(fmt.Errorf("saving time entry: %w", err)).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Context("time_entry_id", entry.ID).
				Build()
		}
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetTimeEntry retrieves a single time entry with its targets.
func (ds *DataStore) GetTimeEntry(id string) (TimeEntry, error) {
	var entry TimeEntry
	err := ds.DB.Preload("Targets").Where("id = ?", id).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TimeEntry{}, ErrTimeEntryNotFound
		}
		return TimeEntry{}, fmt.Errorf("getting time entry: %w", err)
	}
	return entry, nil
}

// GetTimeEntriesByUser returns the user's entries, newest first.
func (ds *DataStore) GetTimeEntriesByUser(userID string) ([]TimeEntry, error) {
	var entries []TimeEntry
	err := ds.DB.Preload("Targets").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("getting time entries for user: %w", err)
	}
	return entries, nil
}

// statusAdvanceFrom lists the states each transition may leave. Missing
// source states make the write a no-op, so a FAILED entry never turns
// back into MIRRORING and the two terminal states never flip into each
// other.
var statusAdvanceFrom = map[string][]string{
	StatusMirroring: {StatusDraft, StatusConfirmed},
	StatusCompleted: {StatusConfirmed, StatusMirroring},
	StatusFailed:    {StatusDraft, StatusConfirmed, StatusMirroring},
}

// AdvanceTimeEntryStatus moves the lifecycle status of an entry forward.
// The guard lives in the WHERE clause so concurrent consumers cannot
// interleave a read-then-write regression.
func (ds *DataStore) AdvanceTimeEntryStatus(id, status, errorMessage string) error {
	from, ok := statusAdvanceFrom[status]
	if !ok {
		return fmt.Errorf("no advance path to status %s", status)
	}

	result := ds.DB.Model(&TimeEntry{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]any{
			"status":        status,
			"error_message": errorMessage,
		})
	if result.Error != nil {
		return fmt.Errorf("updating time entry status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Distinguish a missing entry from one already past this state.
		var count int64
		if err := ds.DB.Model(&TimeEntry{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("checking time entry: %w", err)
		}
		if count == 0 {
			return ErrTimeEntryNotFound
		}
	}
	return nil
}

// SaveWorklog inserts a mirrored worklog row. Inserting the same
// (time entry, target) pair twice violates the unique index, which the
// caller treats as already-mirrored.
func (ds *DataStore) SaveWorklog(worklog *Worklog) error {
	if err := ds.DB.Create(worklog).Error; err != nil {
		return errors.New(fmt.Errorf("saving worklog: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("time_entry_id", worklog.TimeEntryID).
			Context("entity_id", worklog.EntityID).
			Build()
	}
	return nil
}

// GetWorklogsForEntity returns mirrored worklogs for a target entity,
// newest first.
func (ds *DataStore) GetWorklogsForEntity(entityType, entityID string) ([]Worklog, error) {
	var worklogs []Worklog
	err := ds.DB.
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("mirrored_at DESC").
		Find(&worklogs).Error
	if err != nil {
		return nil, fmt.Errorf("getting worklogs: %w", err)
	}
	return worklogs, nil
}

// CountWorklogsForEntry returns how many targets of a time entry have
// been mirrored so far.
func (ds *DataStore) CountWorklogsForEntry(timeEntryID string) (int64, error) {
	var count int64
	err := ds.DB.Model(&Worklog{}).
		Where("time_entry_id = ?", timeEntryID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting worklogs: %w", err)
	}
	return count, nil
}

// IsEventProcessed reports whether an event key has been handled before.
func (ds *DataStore) IsEventProcessed(eventKey string) (bool, error) {
	var count int64
	err := ds.DB.Model(&ProcessedEvent{}).
		Where("event_key = ?", eventKey).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking processed event: %w", err)
	}
	return count > 0, nil
}

// MarkEventProcessed records an event key as handled.
func (ds *DataStore) MarkEventProcessed(processed *ProcessedEvent) error {
	if err := ds.DB.Create(processed).Error; err != nil {
		return fmt.Errorf("marking event processed: %w", err)
	}
	return nil
}
