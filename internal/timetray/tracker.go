// Package timetray implements the client-side view of time-entry
// submissions: optimistic records, server reconciliation, and per-target
// freshness badges fed by asynchronous mirroring signals.
package timetray

import (
	"sync"
	"time"

	"github.com/monosense-io/synergyflow/internal/events"
)

// EntryStatus is the client-observed lifecycle state of a time entry.
// OPTIMISTIC exists only client-side and is never persisted by the server.
type EntryStatus string

const (
	StatusDraft      EntryStatus = "DRAFT"
	StatusOptimistic EntryStatus = "OPTIMISTIC"
	StatusConfirmed  EntryStatus = "CONFIRMED"
	StatusMirroring  EntryStatus = "MIRRORING"
	StatusCompleted  EntryStatus = "COMPLETED"
	StatusFailed     EntryStatus = "FAILED"
)

// TimeEntry is the client-side record of one submission.
type TimeEntry struct {
	ID              string
	UserID          string
	DurationMinutes int
	Description     string
	OccurredAt      time.Time
	Status          EntryStatus
	CreatedAt       time.Time
	Targets         []events.TargetRef
	TrackingID      string
	ErrorMessage    string
}

// FreshnessBadge is the per-target view of mirroring progress.
type FreshnessBadge struct {
	EntityID    string
	EntityType  events.EntityType
	Status      events.MirrorStatus
	LastUpdated time.Time
}

type badgeKey struct {
	entityID   string
	entityType events.EntityType
}

// Snapshot is an immutable copy of the tracker state. Entries are ordered
// most recent first; badges in first-seen order.
type Snapshot struct {
	Entries []TimeEntry
	Badges  []FreshnessBadge
	Active  *TimeEntry
}

// Tracker maintains the client-observed submission state. All mutations
// are serialized behind a mutex and readers only ever see full snapshot
// copies, so no update is ever observed half-applied.
type Tracker struct {
	mu         sync.Mutex
	entries    []TimeEntry
	badges     map[badgeKey]FreshnessBadge
	badgeOrder []badgeKey
	activeID   string

	now func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		badges: make(map[badgeKey]FreshnessBadge),
		now:    time.Now,
	}
}

// AddEntry inserts the entry at the head of the list, marks it active,
// and seeds a PENDING freshness badge for each of its targets. Badges a
// mirroring signal has already advanced are left alone.
func (t *Tracker) AddEntry(entry TimeEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = t.now()
	}
	t.entries = append([]TimeEntry{entry}, t.entries...)
	t.activeID = entry.ID

	for _, target := range entry.Targets {
		t.upsertBadgeLocked(FreshnessBadge{
			EntityID:    target.EntityID,
			EntityType:  target.Type,
			Status:      events.MirrorPending,
			LastUpdated: t.now(),
		})
	}
}

// UpdateEntryStatus rewrites an entry's status and error message, then
// derives each of its target badges from the new status. Derived updates
// never regress a badge an out-of-band signal has advanced further.
func (t *Tracker) UpdateEntryStatus(entryID string, status EntryStatus, errorMessage string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.findEntryLocked(entryID)
	if idx < 0 {
		return false
	}

	t.entries[idx].Status = status
	t.entries[idx].ErrorMessage = errorMessage

	derived := deriveBadgeStatus(status)
	for _, target := range t.entries[idx].Targets {
		t.upsertBadgeLocked(FreshnessBadge{
			EntityID:    target.EntityID,
			EntityType:  target.Type,
			Status:      derived,
			LastUpdated: t.now(),
		})
	}
	return true
}

// UpdateEntryTrackingID attaches the server-issued tracking handle.
func (t *Tracker) UpdateEntryTrackingID(entryID, trackingID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.findEntryLocked(entryID)
	if idx < 0 {
		return false
	}
	t.entries[idx].TrackingID = trackingID
	return true
}

// ConfirmEntry supersedes an optimistic entry with its server-confirmed
// identity: the server-assigned id and tracking handle replace the local
// placeholders and the entry moves to CONFIRMED.
func (t *Tracker) ConfirmEntry(localID, serverID, trackingID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.findEntryLocked(localID)
	if idx < 0 {
		return false
	}
	t.entries[idx].ID = serverID
	t.entries[idx].TrackingID = trackingID
	t.entries[idx].Status = StatusConfirmed
	if t.activeID == localID {
		t.activeID = serverID
	}
	return true
}

// SetFreshnessBadge upserts a badge by (entityId, entityType). This is the
// entry point for out-of-band mirroring signals; a signal for an entity
// the tracker has not seen yet is still recorded, never dropped. Upserts
// are monotonic: a badge only moves forward through
// PENDING -> MIRRORING -> {COMPLETED | FAILED}.
func (t *Tracker) SetFreshnessBadge(badge FreshnessBadge) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if badge.LastUpdated.IsZero() {
		badge.LastUpdated = t.now()
	}
	t.upsertBadgeLocked(badge)
}

// RemoveEntry removes an entry outright. Used by workflows that roll back
// a failed optimistic submission instead of keeping it visible as FAILED.
func (t *Tracker) RemoveEntry(entryID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.findEntryLocked(entryID)
	if idx < 0 {
		return false
	}
	t.entries = append(t.entries[:idx], t.entries[idx+1:]...)
	if t.activeID == entryID {
		t.activeID = ""
	}
	return true
}

// ClearCompletedEntries removes entries that are COMPLETED, plus stale
// OPTIMISTIC ones that never transitioned and are safe to discard.
func (t *Tracker) ClearCompletedEntries() {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.entries[:0]
	for _, entry := range t.entries {
		if entry.Status == StatusCompleted || entry.Status == StatusOptimistic {
			if t.activeID == entry.ID {
				t.activeID = ""
			}
			continue
		}
		kept = append(kept, entry)
	}
	t.entries = kept
}

// SetActive marks an entry as the most recently acted-upon one.
// An empty id clears the active slot.
func (t *Tracker) SetActive(entryID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.activeID = entryID
}

// Snapshot returns an immutable copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		Entries: make([]TimeEntry, len(t.entries)),
		Badges:  make([]FreshnessBadge, 0, len(t.badgeOrder)),
	}
	copy(snap.Entries, t.entries)
	for i := range snap.Entries {
		snap.Entries[i].Targets = append([]events.TargetRef(nil), snap.Entries[i].Targets...)
	}
	for _, key := range t.badgeOrder {
		snap.Badges = append(snap.Badges, t.badges[key])
	}
	if t.activeID != "" {
		for i := range snap.Entries {
			if snap.Entries[i].ID == t.activeID {
				snap.Active = &snap.Entries[i]
				break
			}
		}
	}
	return snap
}

// Badge returns the current badge for a target, if any.
func (t *Tracker) Badge(entityID string, entityType events.EntityType) (FreshnessBadge, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	badge, ok := t.badges[badgeKey{entityID, entityType}]
	return badge, ok
}

// Name implements events.Consumer.
func (t *Tracker) Name() string {
	return "timetray-tracker"
}

// ProcessEvent implements events.Consumer; the tracker subscribes to
// mirroring signals and folds them into badges and entry statuses.
func (t *Tracker) ProcessEvent(event events.Event) error {
	signal, ok := event.(*events.MirroringSignal)
	if !ok {
		return nil
	}
	t.ApplySignal(signal)
	return nil
}

// ApplySignal records one mirroring signal: the target badge is advanced
// and, when the signal names its owning entry, that entry's status is
// reconciled against the badges of all its targets.
func (t *Tracker) ApplySignal(signal *events.MirroringSignal) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.upsertBadgeLocked(FreshnessBadge{
		EntityID:    signal.EntityID,
		EntityType:  signal.EntityType,
		Status:      signal.Status,
		LastUpdated: t.now(),
	})

	if signal.TimeEntryID == "" {
		return
	}
	idx := t.findEntryLocked(signal.TimeEntryID)
	if idx < 0 {
		return
	}
	t.reconcileEntryLocked(idx)
}

// reconcileEntryLocked converges an entry's status from its target badges:
// all COMPLETED means COMPLETED, any FAILED means FAILED, otherwise the
// entry is still MIRRORING. Entries without badges are left alone.
func (t *Tracker) reconcileEntryLocked(idx int) {
	entry := &t.entries[idx]
	if len(entry.Targets) == 0 {
		return
	}

	completed := 0
	failed := 0
	for _, target := range entry.Targets {
		badge, ok := t.badges[badgeKey{target.EntityID, target.Type}]
		if !ok {
			continue
		}
		switch badge.Status {
		case events.MirrorCompleted:
			completed++
		case events.MirrorFailed:
			failed++
		}
	}

	switch {
	case failed > 0:
		entry.Status = StatusFailed
	case completed == len(entry.Targets):
		entry.Status = StatusCompleted
	default:
		entry.Status = StatusMirroring
	}
}

func (t *Tracker) findEntryLocked(entryID string) int {
	for i := range t.entries {
		if t.entries[i].ID == entryID {
			return i
		}
	}
	return -1
}

// upsertBadgeLocked replaces a badge in place when the new status advances
// it, appends when the key is new, and otherwise leaves the badge alone.
func (t *Tracker) upsertBadgeLocked(badge FreshnessBadge) {
	key := badgeKey{badge.EntityID, badge.EntityType}
	existing, ok := t.badges[key]
	if !ok {
		t.badges[key] = badge
		t.badgeOrder = append(t.badgeOrder, key)
		return
	}
	if badge.Status.AdvancesOver(existing.Status) {
		t.badges[key] = badge
	}
}

// deriveBadgeStatus maps an entry status onto the badge domain.
func deriveBadgeStatus(status EntryStatus) events.MirrorStatus {
	switch status {
	case StatusCompleted:
		return events.MirrorCompleted
	case StatusFailed:
		return events.MirrorFailed
	case StatusMirroring:
		return events.MirrorMirroring
	default:
		return events.MirrorPending
	}
}
