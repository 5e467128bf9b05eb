package timetray

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/monosense-io/synergyflow/internal/apiclient"
	"github.com/monosense-io/synergyflow/internal/errors"
	"github.com/monosense-io/synergyflow/internal/events"
	"github.com/monosense-io/synergyflow/internal/logging"
)

// CreateTimeEntryRequest is the submission payload sent to the intake API.
type CreateTimeEntryRequest struct {
	UserID          string          `json:"userId"`
	DurationMinutes int             `json:"durationMinutes"`
	Description     string          `json:"description"`
	OccurredAt      *time.Time      `json:"occurredAt,omitempty"`
	Targets         []TargetPayload `json:"targetEntities"`
}

// TargetPayload is the wire form of a mirroring target.
type TargetPayload struct {
	EntityType  string `json:"type"`
	EntityID    string `json:"entityId"`
	EntityTitle string `json:"entityTitle,omitempty"`
}

// CreateTimeEntryResponse is the 202 Accepted body for a single submission.
type CreateTimeEntryResponse struct {
	TrackingID   string   `json:"trackingId"`
	Message      string   `json:"message"`
	TimeEntryIDs []string `json:"timeEntryIds"`
}

// BulkTimeEntryRequest carries several submissions accepted atomically.
type BulkTimeEntryRequest struct {
	Entries []CreateTimeEntryRequest `json:"entries"`
}

// BulkTimeEntryResponse is the 202 Accepted body for a bulk submission.
type BulkTimeEntryResponse struct {
	Message     string   `json:"message"`
	TrackingIDs []string `json:"trackingIds"`
}

// SubmitInput describes one time entry to submit. When Targets is empty
// the submitter infers them from the description text.
type SubmitInput struct {
	UserID          string
	DurationMinutes int
	Description     string
	OccurredAt      time.Time
	Targets         []events.TargetRef
}

// Submitter drives the optimistic submission workflow: it records an
// OPTIMISTIC entry in the tracker, posts to the intake API through the
// retrying client, and reconciles the entry with the server's answer.
type Submitter struct {
	client  *apiclient.Client
	tracker *Tracker
	logger  *slog.Logger
	now     func() time.Time
}

// NewSubmitter wires a submitter to its transport client and tracker.
func NewSubmitter(client *apiclient.Client, tracker *Tracker) *Submitter {
	logger := logging.ForService("timetray")
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{
		client:  client,
		tracker: tracker,
		logger:  logger,
		now:     time.Now,
	}
}

// Submit runs the full optimistic flow for one entry. On success the
// returned entry carries the server id, tracking id, and CONFIRMED
// status; on transport failure the tracker entry is marked FAILED and
// the error is returned for the caller to surface.
func (s *Submitter) Submit(ctx context.Context, input SubmitInput) (TimeEntry, error) {
	targets := input.Targets
	if len(targets) == 0 {
		targets = InferTargets(input.Description)
	}
	if len(targets) == 0 {
		return TimeEntry{}, errors.Newf("no targets given and none found in description").
			Component("timetray").
			Category(errors.CategoryValidation).
			Build()
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}

	localID := "local-" + uuid.New().String()
	s.tracker.AddEntry(TimeEntry{
		ID:              localID,
		UserID:          input.UserID,
		DurationMinutes: input.DurationMinutes,
		Description:     input.Description,
		OccurredAt:      occurredAt,
		Status:          StatusOptimistic,
		Targets:         targets,
	})

	var resp CreateTimeEntryResponse
	err := s.client.Post(ctx, "/api/v1/time-entries", buildRequest(input, occurredAt, targets), &resp, nil)
	if err != nil {
		s.tracker.UpdateEntryStatus(localID, StatusFailed, err.Error())
		s.tracker.SetActive("")
		s.logger.Error("time entry submission failed",
			"local_id", localID,
			"user_id", input.UserID,
			"error", err)
		return TimeEntry{}, errors.New(err).
			Component("timetray").
			Category(errors.CategoryNetwork).
			Context("local_id", localID).
			Build()
	}

	serverID := localID
	if len(resp.TimeEntryIDs) > 0 {
		serverID = resp.TimeEntryIDs[0]
	}
	s.tracker.ConfirmEntry(localID, serverID, resp.TrackingID)

	s.logger.Info("time entry accepted",
		"entry_id", serverID,
		"tracking_id", resp.TrackingID,
		"targets", len(targets))

	entry, _ := s.entryByID(serverID)
	return entry, nil
}

// SubmitBulk posts several entries in one atomic request. Each entry gets
// its own optimistic tracker record; on failure every record is marked
// FAILED, since the server accepts all or none.
func (s *Submitter) SubmitBulk(ctx context.Context, inputs []SubmitInput) (BulkTimeEntryResponse, error) {
	if len(inputs) == 0 {
		return BulkTimeEntryResponse{}, errors.Newf("bulk submission requires at least one entry").
			Component("timetray").
			Category(errors.CategoryValidation).
			Build()
	}

	// Resolve every entry's targets before touching the tracker; the
	// server accepts all or none, so an untargeted entry fails the whole
	// batch here instead of on the wire.
	resolved := make([][]events.TargetRef, 0, len(inputs))
	for i, input := range inputs {
		targets := input.Targets
		if len(targets) == 0 {
			targets = InferTargets(input.Description)
		}
		if len(targets) == 0 {
			return BulkTimeEntryResponse{}, errors.Newf("entry %d has no targets and none found in description", i).
				Component("timetray").
				Category(errors.CategoryValidation).
				Build()
		}
		resolved = append(resolved, targets)
	}

	req := BulkTimeEntryRequest{Entries: make([]CreateTimeEntryRequest, 0, len(inputs))}
	localIDs := make([]string, 0, len(inputs))
	for i, input := range inputs {
		targets := resolved[i]
		occurredAt := input.OccurredAt
		if occurredAt.IsZero() {
			occurredAt = s.now()
		}

		localID := "local-" + uuid.New().String()
		localIDs = append(localIDs, localID)
		s.tracker.AddEntry(TimeEntry{
			ID:              localID,
			UserID:          input.UserID,
			DurationMinutes: input.DurationMinutes,
			Description:     input.Description,
			OccurredAt:      occurredAt,
			Status:          StatusOptimistic,
			Targets:         targets,
		})
		req.Entries = append(req.Entries, buildRequest(input, occurredAt, targets))
	}

	var resp BulkTimeEntryResponse
	if err := s.client.Post(ctx, "/api/v1/time-entries/bulk", req, &resp, nil); err != nil {
		for _, localID := range localIDs {
			s.tracker.UpdateEntryStatus(localID, StatusFailed, err.Error())
		}
		s.logger.Error("bulk submission failed", "entries", len(inputs), "error", err)
		return BulkTimeEntryResponse{}, errors.New(err).
			Component("timetray").
			Category(errors.CategoryNetwork).
			Context("entries", len(inputs)).
			Build()
	}

	for i, localID := range localIDs {
		trackingID := ""
		if i < len(resp.TrackingIDs) {
			trackingID = resp.TrackingIDs[i]
		}
		s.tracker.UpdateEntryTrackingID(localID, trackingID)
		s.tracker.UpdateEntryStatus(localID, StatusConfirmed, "")
	}

	s.logger.Info("bulk submission accepted", "entries", len(inputs))
	return resp, nil
}

func (s *Submitter) entryByID(id string) (TimeEntry, bool) {
	for _, entry := range s.tracker.Snapshot().Entries {
		if entry.ID == id {
			return entry, true
		}
	}
	return TimeEntry{}, false
}

func buildRequest(input SubmitInput, occurredAt time.Time, targets []events.TargetRef) CreateTimeEntryRequest {
	payload := CreateTimeEntryRequest{
		UserID:          input.UserID,
		DurationMinutes: input.DurationMinutes,
		Description:     input.Description,
		OccurredAt:      &occurredAt,
		Targets:         make([]TargetPayload, 0, len(targets)),
	}
	for _, target := range targets {
		payload.Targets = append(payload.Targets, TargetPayload{
			EntityType:  string(target.Type),
			EntityID:    target.EntityID,
			EntityTitle: target.EntityTitle,
		})
	}
	return payload
}
