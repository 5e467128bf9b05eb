package timetray

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monosense-io/synergyflow/internal/events"
)

func testEntry(id string, targets ...events.TargetRef) TimeEntry {
	return TimeEntry{
		ID:              id,
		UserID:          "user-1",
		DurationMinutes: 30,
		Description:     "triage work",
		OccurredAt:      time.Now(),
		Status:          StatusOptimistic,
		Targets:         targets,
	}
}

func incident(id string) events.TargetRef {
	return events.TargetRef{Type: events.EntityIncident, EntityID: id}
}

func TestAddEntryInsertsAtHeadAndSeedsBadges(t *testing.T) {
	tracker := NewTracker()
	tracker.AddEntry(testEntry("e1", incident("INC-1")))
	tracker.AddEntry(testEntry("e2", incident("INC-2")))

	snap := tracker.Snapshot()
	require.Len(t, snap.Entries, 2)
	assert.Equal(t, "e2", snap.Entries[0].ID, "newest entry first")
	assert.Equal(t, "e1", snap.Entries[1].ID)

	require.NotNil(t, snap.Active)
	assert.Equal(t, "e2", snap.Active.ID)

	badge, ok := tracker.Badge("INC-1", events.EntityIncident)
	require.True(t, ok)
	assert.Equal(t, events.MirrorPending, badge.Status)
}

func TestUpdateEntryStatusDerivesBadges(t *testing.T) {
	cases := []struct {
		entryStatus EntryStatus
		wantBadge   events.MirrorStatus
	}{
		{StatusConfirmed, events.MirrorPending},
		{StatusMirroring, events.MirrorMirroring},
		{StatusCompleted, events.MirrorCompleted},
		{StatusFailed, events.MirrorFailed},
	}

	for _, tc := range cases {
		t.Run(string(tc.entryStatus), func(t *testing.T) {
			tracker := NewTracker()
			tracker.AddEntry(testEntry("e1", incident("INC-1")))

			require.True(t, tracker.UpdateEntryStatus("e1", tc.entryStatus, ""))

			badge, ok := tracker.Badge("INC-1", events.EntityIncident)
			require.True(t, ok)
			assert.Equal(t, tc.wantBadge, badge.Status)
		})
	}
}

func TestUpdateEntryStatusUnknownEntry(t *testing.T) {
	tracker := NewTracker()
	assert.False(t, tracker.UpdateEntryStatus("missing", StatusFailed, "boom"))
}

func TestBadgesNeverRegress(t *testing.T) {
	tracker := NewTracker()
	tracker.AddEntry(testEntry("e1", incident("INC-1")))

	tracker.SetFreshnessBadge(FreshnessBadge{
		EntityID:   "INC-1",
		EntityType: events.EntityIncident,
		Status:     events.MirrorCompleted,
	})

	// A late derived update must not pull the badge back to PENDING.
	tracker.UpdateEntryStatus("e1", StatusConfirmed, "")

	badge, ok := tracker.Badge("INC-1", events.EntityIncident)
	require.True(t, ok)
	assert.Equal(t, events.MirrorCompleted, badge.Status)
}

func TestRepeatedTerminalBadgeIsIdempotent(t *testing.T) {
	tracker := NewTracker()

	first := FreshnessBadge{
		EntityID:    "INC-1",
		EntityType:  events.EntityIncident,
		Status:      events.MirrorCompleted,
		LastUpdated: time.Now(),
	}
	tracker.SetFreshnessBadge(first)

	tracker.SetFreshnessBadge(FreshnessBadge{
		EntityID:    "INC-1",
		EntityType:  events.EntityIncident,
		Status:      events.MirrorCompleted,
		LastUpdated: time.Now().Add(time.Minute),
	})

	badge, ok := tracker.Badge("INC-1", events.EntityIncident)
	require.True(t, ok)
	assert.Equal(t, first.LastUpdated, badge.LastUpdated, "duplicate terminal signal must be a no-op")

	// Terminal states also never flip into each other.
	tracker.SetFreshnessBadge(FreshnessBadge{
		EntityID:   "INC-1",
		EntityType: events.EntityIncident,
		Status:     events.MirrorFailed,
	})
	badge, _ = tracker.Badge("INC-1", events.EntityIncident)
	assert.Equal(t, events.MirrorCompleted, badge.Status)
}

func TestSignalForUnknownEntityIsRecorded(t *testing.T) {
	tracker := NewTracker()

	err := tracker.ProcessEvent(&events.MirroringSignal{
		EntityID:    "TASK-9",
		EntityType:  events.EntityTask,
		TimeEntryID: "entry-x",
		Status:      events.MirrorMirroring,
	})
	require.NoError(t, err)

	badge, ok := tracker.Badge("TASK-9", events.EntityTask)
	require.True(t, ok, "signals for unseen entities are recorded, not dropped")
	assert.Equal(t, events.MirrorMirroring, badge.Status)
}

func TestSignalsReconcileEntryStatus(t *testing.T) {
	tracker := NewTracker()
	tracker.AddEntry(testEntry("e1", incident("INC-1"), events.TargetRef{
		Type:     events.EntityTask,
		EntityID: "TASK-1",
	}))

	tracker.ApplySignal(&events.MirroringSignal{
		EntityID:    "INC-1",
		EntityType:  events.EntityIncident,
		TimeEntryID: "e1",
		Status:      events.MirrorCompleted,
	})

	snap := tracker.Snapshot()
	assert.Equal(t, StatusMirroring, snap.Entries[0].Status,
		"entry stays MIRRORING until every target completes")

	tracker.ApplySignal(&events.MirroringSignal{
		EntityID:    "TASK-1",
		EntityType:  events.EntityTask,
		TimeEntryID: "e1",
		Status:      events.MirrorCompleted,
	})

	snap = tracker.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Entries[0].Status)
}

func TestFailedSignalFailsEntry(t *testing.T) {
	tracker := NewTracker()
	tracker.AddEntry(testEntry("e1", incident("INC-1")))

	tracker.ApplySignal(&events.MirroringSignal{
		EntityID:    "INC-1",
		EntityType:  events.EntityIncident,
		TimeEntryID: "e1",
		Status:      events.MirrorFailed,
		Message:     "target gone",
	})

	snap := tracker.Snapshot()
	assert.Equal(t, StatusFailed, snap.Entries[0].Status)
}

func TestClearCompletedEntries(t *testing.T) {
	tracker := NewTracker()
	tracker.AddEntry(testEntry("done", incident("INC-1")))
	tracker.AddEntry(testEntry("stale"))
	tracker.AddEntry(testEntry("pending", incident("INC-2")))

	tracker.UpdateEntryStatus("done", StatusCompleted, "")
	tracker.UpdateEntryStatus("pending", StatusConfirmed, "")

	tracker.ClearCompletedEntries()

	snap := tracker.Snapshot()
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, "pending", snap.Entries[0].ID)

	// Badges survive clearing so freshness stays visible on the entities.
	_, ok := tracker.Badge("INC-1", events.EntityIncident)
	assert.True(t, ok)
}

func TestConfirmEntrySwapsIdentity(t *testing.T) {
	tracker := NewTracker()
	tracker.AddEntry(testEntry("local-1", incident("INC-1")))

	require.True(t, tracker.ConfirmEntry("local-1", "server-1", "track-1"))

	snap := tracker.Snapshot()
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, "server-1", snap.Entries[0].ID)
	assert.Equal(t, "track-1", snap.Entries[0].TrackingID)
	assert.Equal(t, StatusConfirmed, snap.Entries[0].Status)
	require.NotNil(t, snap.Active)
	assert.Equal(t, "server-1", snap.Active.ID)
}

func TestSnapshotIsACopy(t *testing.T) {
	tracker := NewTracker()
	tracker.AddEntry(testEntry("e1", incident("INC-1")))

	snap := tracker.Snapshot()
	snap.Entries[0].Status = StatusFailed
	snap.Entries[0].Targets[0].EntityID = "mutated"

	fresh := tracker.Snapshot()
	assert.Equal(t, StatusOptimistic, fresh.Entries[0].Status)
	assert.Equal(t, "INC-1", fresh.Entries[0].Targets[0].EntityID)
}
