// handlers_health.go - Health check handlers
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version    string
	ocrBaseURL string
	started    time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version, ocrBaseURL string) HealthHandler {
	return &HealthHandlerImpl{
		version:    version,
		ocrBaseURL: ocrBaseURL,
		started:    time.Now(),
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"version":    h.version,
		"ocrService": h.ocrBaseURL,
		"uptime":     time.Since(h.started).Round(time.Second).String(),
	})
}
