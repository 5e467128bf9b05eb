package datastore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monosense-io/synergyflow/internal/conf"
)

func openTestStore(t *testing.T) Interface {
	t.Helper()
	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "test.db")

	store := New(settings)
	require.NotNil(t, store)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleEntry(id, userID string) *TimeEntry {
	return &TimeEntry{
		ID:              id,
		UserID:          userID,
		DurationMinutes: 30,
		Description:     "triage work",
		OccurredAt:      time.Now(),
		Status:          StatusConfirmed,
		TrackingID:      "track-" + id,
		Targets: []TimeEntryTarget{
			{TimeEntryID: id, EntityType: "INCIDENT", EntityID: "INC-1"},
		},
	}
}

func TestSaveAndGetTimeEntry(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.SaveTimeEntries([]*TimeEntry{sampleEntry("e1", "user-1")}))

	entry, err := store.GetTimeEntry("e1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", entry.UserID)
	assert.Equal(t, StatusConfirmed, entry.Status)
	require.Len(t, entry.Targets, 1, "targets are preloaded")
	assert.Equal(t, "INC-1", entry.Targets[0].EntityID)
}

func TestGetTimeEntryNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetTimeEntry("missing")
	assert.ErrorIs(t, err, ErrTimeEntryNotFound)
}

func TestGetTimeEntriesByUserNewestFirst(t *testing.T) {
	store := openTestStore(t)

	older := sampleEntry("e1", "user-1")
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := sampleEntry("e2", "user-1")
	newer.Targets[0].EntityID = "INC-2"
	other := sampleEntry("e3", "user-2")
	other.Targets[0].EntityID = "INC-3"

	require.NoError(t, store.SaveTimeEntries([]*TimeEntry{older, newer, other}))

	entries, err := store.GetTimeEntriesByUser("user-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e2", entries[0].ID)
	assert.Equal(t, "e1", entries[1].ID)
}

func TestSaveTimeEntriesIsAtomic(t *testing.T) {
	store := openTestStore(t)

	good := sampleEntry("e1", "user-1")
	duplicate := sampleEntry("e1", "user-1") // same primary key forces a failure

	err := store.SaveTimeEntries([]*TimeEntry{good, duplicate})
	require.Error(t, err)

	_, err = store.GetTimeEntry("e1")
	assert.ErrorIs(t, err, ErrTimeEntryNotFound, "nothing persists when one entry fails")
}

func TestAdvanceTimeEntryStatus(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.SaveTimeEntries([]*TimeEntry{sampleEntry("e1", "user-1")}))

	require.NoError(t, store.AdvanceTimeEntryStatus("e1", StatusFailed, "target gone"))

	entry, err := store.GetTimeEntry("e1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, entry.Status)
	assert.Equal(t, "target gone", entry.ErrorMessage)

	assert.ErrorIs(t, store.AdvanceTimeEntryStatus("missing", StatusFailed, ""), ErrTimeEntryNotFound)
}

func TestAdvanceTimeEntryStatusNeverRegresses(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.SaveTimeEntries([]*TimeEntry{sampleEntry("e1", "user-1")}))

	require.NoError(t, store.AdvanceTimeEntryStatus("e1", StatusFailed, "target gone"))

	// A late sibling write must not pull the entry out of its terminal state.
	require.NoError(t, store.AdvanceTimeEntryStatus("e1", StatusMirroring, ""))
	require.NoError(t, store.AdvanceTimeEntryStatus("e1", StatusCompleted, ""))

	entry, err := store.GetTimeEntry("e1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, entry.Status)
	assert.Equal(t, "target gone", entry.ErrorMessage)
}

func TestWorklogUniqueness(t *testing.T) {
	store := openTestStore(t)

	worklog := &Worklog{
		TimeEntryID: "e1",
		EntityType:  "INCIDENT",
		EntityID:    "INC-1",
		UserID:      "user-1",
		MirroredAt:  time.Now(),
	}
	require.NoError(t, store.SaveWorklog(worklog))

	again := *worklog
	again.ID = 0
	assert.Error(t, store.SaveWorklog(&again), "duplicate (entry, target) pair must be rejected")

	count, err := store.CountWorklogsForEntry("e1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	found, err := store.GetWorklogsForEntity("INCIDENT", "INC-1")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "e1", found[0].TimeEntryID)
}

func TestProcessedEvents(t *testing.T) {
	store := openTestStore(t)

	processed, err := store.IsEventProcessed("e1:worklog-INCIDENT")
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, store.MarkEventProcessed(&ProcessedEvent{
		EventKey:    "e1:worklog-INCIDENT",
		EventType:   "time-entry-created",
		ProcessedAt: time.Now(),
	}))

	processed, err = store.IsEventProcessed("e1:worklog-INCIDENT")
	require.NoError(t, err)
	assert.True(t, processed)
}
