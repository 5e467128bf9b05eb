// Package mirroring implements the asynchronous propagation of accepted
// time entries onto their target entities. Consumers subscribe to the
// event bus, write worklog rows with idempotency guarantees, and emit
// per-target progress signals that clients observe as freshness badges.
package mirroring

import (
	"fmt"
	"time"

	"log/slog"

	"github.com/monosense-io/synergyflow/internal/datastore"
	"github.com/monosense-io/synergyflow/internal/events"
	"github.com/monosense-io/synergyflow/internal/logging"
	"github.com/monosense-io/synergyflow/internal/observability/metrics"
)

// SignalPublisher is the narrow slice of the event bus the consumers need
// to emit progress signals.
type SignalPublisher interface {
	TryPublish(event events.Event) bool
}

// Propagator wires one worklog consumer per supported entity type onto
// the event bus.
type Propagator struct {
	consumers []*WorklogConsumer
}

// NewPropagator creates consumers for every supported entity type.
// metrics may be nil, in which case no metrics are recorded.
func NewPropagator(ds datastore.Interface, publisher SignalPublisher, m *metrics.MirroringMetrics) *Propagator {
	entityTypes := []events.EntityType{
		events.EntityIncident,
		events.EntityTask,
		events.EntityProject,
	}

	p := &Propagator{}
	for _, et := range entityTypes {
		p.consumers = append(p.consumers, NewWorklogConsumer(et, ds, publisher, m))
	}
	return p
}

// Register subscribes all consumers on the given bus.
func (p *Propagator) Register(bus *events.EventBus) error {
	for _, c := range p.consumers {
		if err := bus.RegisterConsumer(c); err != nil {
			return fmt.Errorf("registering %s: %w", c.Name(), err)
		}
	}
	return nil
}

// WorklogConsumer mirrors time entries onto targets of a single entity
// type. Each consumer processes every TimeEntryCreatedEvent exactly once,
// keyed by (time entry id, consumer name) in the processed-event table.
type WorklogConsumer struct {
	entityType events.EntityType
	ds         datastore.Interface
	publisher  SignalPublisher
	metrics    *metrics.MirroringMetrics
	logger     *slog.Logger
}

// NewWorklogConsumer creates a consumer for one entity type.
func NewWorklogConsumer(entityType events.EntityType, ds datastore.Interface, publisher SignalPublisher, m *metrics.MirroringMetrics) *WorklogConsumer {
	logger := logging.ForService("mirroring")
	if logger == nil {
		logger = slog.Default().With("service", "mirroring")
	}
	return &WorklogConsumer{
		entityType: entityType,
		ds:         ds,
		publisher:  publisher,
		metrics:    m,
		logger:     logger.With("entity_type", string(entityType)),
	}
}

// Name implements events.Consumer.
func (c *WorklogConsumer) Name() string {
	return "worklog-" + string(c.entityType)
}

// ProcessEvent implements events.Consumer. Events other than
// TimeEntryCreatedEvent are ignored.
func (c *WorklogConsumer) ProcessEvent(event events.Event) error {
	e, ok := event.(*events.TimeEntryCreatedEvent)
	if !ok {
		return nil
	}

	eventKey := fmt.Sprintf("%s:%s", e.TimeEntryID, c.Name())

	processed, err := c.ds.IsEventProcessed(eventKey)
	if err != nil {
		return fmt.Errorf("checking idempotency for %s: %w", eventKey, err)
	}
	if processed {
		if c.metrics != nil {
			c.metrics.RecordDuplicate()
		}
		c.logger.Debug("event already processed, skipping",
			"time_entry_id", e.TimeEntryID,
			"correlation_id", e.CorrelationID,
		)
		return nil
	}

	targets := e.TargetsOfType(c.entityType)
	if len(targets) > 0 {
		// A no-op once a sibling consumer has advanced or failed the
		// entry, so its status never moves backwards.
		if err := c.ds.AdvanceTimeEntryStatus(e.TimeEntryID, datastore.StatusMirroring, ""); err != nil {
			c.logger.Warn("failed to mark entry mirroring",
				"time_entry_id", e.TimeEntryID,
				"error", err,
			)
		}

		failures := 0
		for _, target := range targets {
			c.emitSignal(e, target, events.MirrorMirroring, "")

			start := time.Now()
			if err := c.mirror(e, target); err != nil {
				failures++
				if c.metrics != nil {
					c.metrics.RecordFailure(string(c.entityType))
				}
				c.logger.Error("failed to mirror time entry",
					"time_entry_id", e.TimeEntryID,
					"entity_id", target.EntityID,
					"error", err,
				)
				c.emitSignal(e, target, events.MirrorFailed, err.Error())
				// Keep going, one bad target must not block the others
				continue
			}

			if c.metrics != nil {
				c.metrics.RecordMirrored(string(c.entityType), time.Since(start))
			}
			c.logger.Info("mirrored time entry",
				"time_entry_id", e.TimeEntryID,
				"entity_id", target.EntityID,
				"duration_ms", time.Since(start).Milliseconds(),
				"correlation_id", e.CorrelationID,
			)
			c.emitSignal(e, target, events.MirrorCompleted, "")
		}

		c.updateEntryOutcome(e, failures)
	}

	return c.ds.MarkEventProcessed(&datastore.ProcessedEvent{
		EventKey:      eventKey,
		EventType:     e.EventName(),
		CorrelationID: e.CorrelationID,
		ProcessedAt:   time.Now(),
	})
}

// mirror writes the worklog row for one target. A unique-index violation
// means a previous attempt already landed the row, which counts as success.
func (c *WorklogConsumer) mirror(e *events.TimeEntryCreatedEvent, target events.TargetRef) error {
	worklog := &datastore.Worklog{
		TimeEntryID:     e.TimeEntryID,
		EntityType:      string(target.Type),
		EntityID:        target.EntityID,
		UserID:          e.UserID,
		DurationMinutes: e.DurationMinutes,
		Description:     e.Description,
		OccurredAt:      e.OccurredAt,
		MirroredAt:      time.Now(),
	}

	if err := c.ds.SaveWorklog(worklog); err != nil {
		existing, lookupErr := c.ds.GetWorklogsForEntity(string(target.Type), target.EntityID)
		if lookupErr == nil {
			for i := range existing {
				if existing[i].TimeEntryID == e.TimeEntryID {
					return nil // already mirrored by an earlier attempt
				}
			}
		}
		return err
	}
	return nil
}

// updateEntryOutcome converges the owning entry's status once this
// consumer's share of targets is done. The entry completes when every
// target across all consumers has a worklog; a failed entry stays
// failed even when a sibling's targets all succeed.
func (c *WorklogConsumer) updateEntryOutcome(e *events.TimeEntryCreatedEvent, failures int) {
	if failures > 0 {
		msg := fmt.Sprintf("%d of %d %s targets failed to mirror", failures, len(e.TargetsOfType(c.entityType)), c.entityType)
		if err := c.ds.AdvanceTimeEntryStatus(e.TimeEntryID, datastore.StatusFailed, msg); err != nil {
			c.logger.Warn("failed to mark entry failed", "time_entry_id", e.TimeEntryID, "error", err)
		}
		return
	}

	mirrored, err := c.ds.CountWorklogsForEntry(e.TimeEntryID)
	if err != nil {
		c.logger.Warn("failed to count mirrored targets", "time_entry_id", e.TimeEntryID, "error", err)
		return
	}
	if mirrored == int64(len(e.Targets)) {
		if err := c.ds.AdvanceTimeEntryStatus(e.TimeEntryID, datastore.StatusCompleted, ""); err != nil {
			c.logger.Warn("failed to mark entry completed", "time_entry_id", e.TimeEntryID, "error", err)
		}
	}
}

func (c *WorklogConsumer) emitSignal(e *events.TimeEntryCreatedEvent, target events.TargetRef, status events.MirrorStatus, message string) {
	signal := &events.MirroringSignal{
		EntityID:      target.EntityID,
		EntityType:    target.Type,
		TimeEntryID:   e.TimeEntryID,
		TrackingID:    e.TrackingID,
		Status:        status,
		Message:       message,
		CorrelationID: e.CorrelationID,
		EmittedAt:     time.Now(),
	}
	if c.metrics != nil {
		c.metrics.RecordSignal(string(status))
	}
	if c.publisher != nil {
		c.publisher.TryPublish(signal)
	}
}
