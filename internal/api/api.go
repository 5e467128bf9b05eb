// Package api implements the HTTP intake surface for time-entry
// submissions: REST endpoints accepting entries with 202 Accepted
// semantics, RFC 7807 problem details on failure, and event publication
// toward the asynchronous mirroring pipeline.
package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"

	"github.com/monosense-io/synergyflow/internal/conf"
	"github.com/monosense-io/synergyflow/internal/datastore"
	"github.com/monosense-io/synergyflow/internal/events"
	"github.com/monosense-io/synergyflow/internal/logging"
	"github.com/monosense-io/synergyflow/internal/observability"
)

// Publisher delivers events toward the mirroring pipeline without
// blocking the request path.
type Publisher interface {
	TryPublish(event events.Event) bool
}

// Controller manages the API routes and handlers.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	DS       datastore.Interface
	Settings *conf.Settings

	publisher Publisher
	metrics   *observability.Metrics
	validate  *validator.Validate
	listCache *cache.Cache
	apiLogger *slog.Logger
	startTime time.Time
}

// New creates and wires an API controller, registering all routes on the
// given echo instance. The publisher may be nil, in which case accepted
// entries are persisted but no mirroring events are emitted.
func New(e *echo.Echo, ds datastore.Interface, settings *conf.Settings,
	publisher Publisher, metrics *observability.Metrics) *Controller {

	apiLogger := logging.ForService("api")
	if apiLogger == nil {
		apiLogger = slog.Default()
	}

	c := &Controller{
		Echo:      e,
		DS:        ds,
		Settings:  settings,
		publisher: publisher,
		metrics:   metrics,
		validate:  newValidator(),
		listCache: cache.New(30*time.Second, time.Minute),
		apiLogger: apiLogger,
		startTime: time.Now(),
	}

	c.Group = e.Group("/api/v1")
	c.Group.Use(middleware.Recover())
	c.Group.Use(c.correlationMiddleware())

	c.initRoutes()
	return c
}

// initRoutes registers all API endpoints.
func (c *Controller) initRoutes() {
	c.Group.POST("/time-entries", c.CreateTimeEntry)
	c.Group.POST("/time-entries/bulk", c.CreateTimeEntriesBulk)
	c.Group.GET("/time-entries", c.ListTimeEntries)
	c.Group.GET("/time-entries/:id", c.GetTimeEntry)
	c.Group.GET("/health", c.Health)

	if c.metrics != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(c.metrics.Handler()))
	}
}

// Shutdown releases controller resources. The echo server itself is
// stopped by the caller.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.listCache.Flush()
	return nil
}

// logAPIRequest logs a request-scoped message with common context fields.
func (c *Controller) logAPIRequest(ctx echo.Context, level slog.Level, msg string, args ...any) {
	common := []any{
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"correlation_id", correlationID(ctx),
		"ip", ctx.RealIP(),
	}
	c.apiLogger.Log(ctx.Request().Context(), level, msg, append(common, args...)...)
}
