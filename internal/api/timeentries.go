package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/monosense-io/synergyflow/internal/datastore"
	"github.com/monosense-io/synergyflow/internal/events"
)

// TimeEntryRequest is the intake payload for one time entry.
type TimeEntryRequest struct {
	UserID          string          `json:"userId" validate:"required"`
	DurationMinutes int             `json:"durationMinutes" validate:"required,min=1,max=1440"`
	Description     string          `json:"description" validate:"required,max=500"`
	OccurredAt      *time.Time      `json:"occurredAt"`
	Targets         []TargetRequest `json:"targetEntities" validate:"required,min=1,dive"`
}

// TargetRequest names one entity the entry mirrors to.
type TargetRequest struct {
	EntityType  string `json:"type" validate:"required,oneof=INCIDENT TASK PROJECT"`
	EntityID    string `json:"entityId" validate:"required"`
	EntityTitle string `json:"entityTitle" validate:"max=255"`
}

// BulkTimeEntryRequest carries several entries accepted all-or-nothing.
type BulkTimeEntryRequest struct {
	Entries []TimeEntryRequest `json:"entries" validate:"required,min=1,max=100,dive"`
}

// AcceptedResponse is the 202 body for a single submission.
type AcceptedResponse struct {
	TrackingID   string   `json:"trackingId"`
	Message      string   `json:"message"`
	TimeEntryIDs []string `json:"timeEntryIds"`
}

// BulkAcceptedResponse is the 202 body for a bulk submission.
type BulkAcceptedResponse struct {
	Message     string   `json:"message"`
	TrackingIDs []string `json:"trackingIds"`
}

// TimeEntryResponse is the read model returned by the query endpoints.
type TimeEntryResponse struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	DurationMinutes int             `json:"durationMinutes"`
	Description     string          `json:"description"`
	OccurredAt      time.Time       `json:"occurredAt"`
	Status          string          `json:"status"`
	TrackingID      string          `json:"trackingId"`
	ErrorMessage    string          `json:"errorMessage,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	Targets         []TargetRequest `json:"targets"`
}

// newValidator builds a validator that reports violations under the JSON
// field names the client actually sent.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// CreateTimeEntry accepts one time entry. The entry is persisted
// synchronously and mirroring happens asynchronously, so the endpoint
// answers 202 Accepted with a tracking id rather than 201.
func (c *Controller) CreateTimeEntry(ctx echo.Context) error {
	start := time.Now()

	var req TimeEntryRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Malformed request body", http.StatusBadRequest)
	}
	if err := c.validate.Struct(&req); err != nil {
		return c.handleValidationError(ctx, err)
	}

	entry := c.buildEntry(&req, uuid.New().String(), correlationID(ctx))
	if err := c.DS.SaveTimeEntries([]*datastore.TimeEntry{entry}); err != nil {
		return c.HandleError(ctx, err, "Failed to persist time entry", http.StatusInternalServerError)
	}
	c.listCache.Delete(listCacheKey(entry.UserID))

	c.publishCreated(ctx, entry)

	if c.metrics != nil && c.metrics.TimeEntry != nil {
		c.metrics.TimeEntry.RecordCreated()
		c.metrics.TimeEntry.ObserveCreationDuration(time.Since(start))
	}
	c.logAPIRequest(ctx, slog.LevelInfo, "time entry accepted",
		"entry_id", entry.ID,
		"tracking_id", entry.TrackingID,
		"targets", len(entry.Targets))

	return ctx.JSON(http.StatusAccepted, AcceptedResponse{
		TrackingID:   entry.TrackingID,
		Message:      "Time entry accepted for processing",
		TimeEntryIDs: []string{entry.ID},
	})
}

// CreateTimeEntriesBulk accepts several entries atomically: either every
// entry is persisted and queued for mirroring, or none is.
func (c *Controller) CreateTimeEntriesBulk(ctx echo.Context) error {
	var req BulkTimeEntryRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Malformed request body", http.StatusBadRequest)
	}
	if err := c.validate.Struct(&req); err != nil {
		return c.handleValidationError(ctx, err)
	}

	corrID := correlationID(ctx)
	entries := make([]*datastore.TimeEntry, 0, len(req.Entries))
	trackingIDs := make([]string, 0, len(req.Entries))
	for i := range req.Entries {
		entry := c.buildEntry(&req.Entries[i], uuid.New().String(), corrID)
		entries = append(entries, entry)
		trackingIDs = append(trackingIDs, entry.TrackingID)
	}

	if err := c.DS.SaveTimeEntries(entries); err != nil {
		return c.HandleError(ctx, err, "Failed to persist time entries", http.StatusInternalServerError)
	}
	for _, entry := range entries {
		c.listCache.Delete(listCacheKey(entry.UserID))
		c.publishCreated(ctx, entry)
	}

	if c.metrics != nil && c.metrics.TimeEntry != nil {
		c.metrics.TimeEntry.RecordBulkBatch()
		for range entries {
			c.metrics.TimeEntry.RecordCreated()
		}
	}
	c.logAPIRequest(ctx, slog.LevelInfo, "bulk time entries accepted",
		"entries", len(entries))

	return ctx.JSON(http.StatusAccepted, BulkAcceptedResponse{
		Message:     fmt.Sprintf("%d time entries accepted for processing", len(entries)),
		TrackingIDs: trackingIDs,
	})
}

// GetTimeEntry returns a single entry with its targets.
func (c *Controller) GetTimeEntry(ctx echo.Context) error {
	id := ctx.Param("id")
	entry, err := c.DS.GetTimeEntry(id)
	if err != nil {
		if errors.Is(err, datastore.ErrTimeEntryNotFound) {
			return c.HandleError(ctx, err, "Time entry not found", http.StatusNotFound)
		}
		return c.HandleError(ctx, err, "Failed to load time entry", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, toResponse(&entry))
}

// ListTimeEntries returns a user's entries, newest first. Results are
// cached briefly and invalidated on writes for that user.
func (c *Controller) ListTimeEntries(ctx echo.Context) error {
	userID := ctx.QueryParam("userId")
	if userID == "" {
		return c.HandleError(ctx, errors.New("userId query parameter is required"),
			"Missing userId", http.StatusBadRequest)
	}

	key := listCacheKey(userID)
	if cached, found := c.listCache.Get(key); found {
		return ctx.JSON(http.StatusOK, cached)
	}

	entries, err := c.DS.GetTimeEntriesByUser(userID)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to load time entries", http.StatusInternalServerError)
	}

	out := make([]TimeEntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, toResponse(&entries[i]))
	}
	c.listCache.SetDefault(key, out)
	return ctx.JSON(http.StatusOK, out)
}

func (c *Controller) buildEntry(req *TimeEntryRequest, trackingID, corrID string) *datastore.TimeEntry {
	occurredAt := time.Now()
	if req.OccurredAt != nil {
		occurredAt = *req.OccurredAt
	}

	entry := &datastore.TimeEntry{
		ID:              uuid.New().String(),
		UserID:          req.UserID,
		DurationMinutes: req.DurationMinutes,
		Description:     req.Description,
		OccurredAt:      occurredAt,
		Status:          datastore.StatusConfirmed,
		TrackingID:      trackingID,
		CorrelationID:   corrID,
	}
	for _, target := range req.Targets {
		entry.Targets = append(entry.Targets, datastore.TimeEntryTarget{
			TimeEntryID: entry.ID,
			EntityType:  target.EntityType,
			EntityID:    target.EntityID,
			EntityTitle: target.EntityTitle,
		})
	}
	return entry
}

// publishCreated hands the persisted entry to the mirroring pipeline.
// Publication is best-effort: a full event bus drops the event and the
// entry stays CONFIRMED until a later sweep or resubmission.
func (c *Controller) publishCreated(ctx echo.Context, entry *datastore.TimeEntry) {
	if c.publisher == nil {
		return
	}

	event := &events.TimeEntryCreatedEvent{
		TimeEntryID:     entry.ID,
		TrackingID:      entry.TrackingID,
		UserID:          entry.UserID,
		DurationMinutes: entry.DurationMinutes,
		Description:     entry.Description,
		OccurredAt:      entry.OccurredAt,
		CorrelationID:   entry.CorrelationID,
		EmittedAt:       time.Now(),
	}
	for _, target := range entry.Targets {
		event.Targets = append(event.Targets, events.TargetRef{
			Type:        events.EntityType(target.EntityType),
			EntityID:    target.EntityID,
			EntityTitle: target.EntityTitle,
		})
	}

	if !c.publisher.TryPublish(event) {
		c.logAPIRequest(ctx, slog.LevelWarn, "mirroring event dropped, bus full",
			"entry_id", entry.ID)
	}
}

func toResponse(entry *datastore.TimeEntry) TimeEntryResponse {
	resp := TimeEntryResponse{
		ID:              entry.ID,
		UserID:          entry.UserID,
		DurationMinutes: entry.DurationMinutes,
		Description:     entry.Description,
		OccurredAt:      entry.OccurredAt,
		Status:          entry.Status,
		TrackingID:      entry.TrackingID,
		ErrorMessage:    entry.ErrorMessage,
		CreatedAt:       entry.CreatedAt,
		Targets:         make([]TargetRequest, 0, len(entry.Targets)),
	}
	for _, target := range entry.Targets {
		resp.Targets = append(resp.Targets, TargetRequest{
			EntityType:  target.EntityType,
			EntityID:    target.EntityID,
			EntityTitle: target.EntityTitle,
		})
	}
	return resp
}

func listCacheKey(userID string) string {
	return "time-entries:" + userID
}
