package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthResponse reports process and dependency health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	UptimeS  int64  `json:"uptimeSeconds"`
	Database string `json:"database"`
}

// Health answers liveness probes. The database check runs a cheap query
// so a wedged connection pool degrades the report instead of hiding.
func (c *Controller) Health(ctx echo.Context) error {
	resp := HealthResponse{
		Status:   "healthy",
		UptimeS:  int64(time.Since(c.startTime).Seconds()),
		Database: "connected",
	}
	if c.Settings != nil {
		resp.Version = c.Settings.Version
	}

	if _, err := c.DS.GetTimeEntriesByUser("healthcheck"); err != nil {
		resp.Status = "degraded"
		resp.Database = "error: " + err.Error()
		return ctx.JSON(http.StatusServiceUnavailable, resp)
	}
	return ctx.JSON(http.StatusOK, resp)
}
