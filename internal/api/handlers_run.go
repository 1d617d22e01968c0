// handlers_run.go - Run controller handlers
package api

import (
	"net/http"

	"github.com/certscan/backend/internal/models"
	"github.com/certscan/backend/internal/workspace"
	"github.com/labstack/echo/v4"
)

// RunHandlerImpl implements the RunHandler interface
type RunHandlerImpl struct {
	ws *workspace.Workspace
}

// NewRunHandler creates a new run handler instance
func NewRunHandler(ws *workspace.Workspace) RunHandler {
	return &RunHandlerImpl{ws: ws}
}

// HandleStartRun starts processing the queue with the selected backend
func (h *RunHandlerImpl) HandleStartRun(c echo.Context) error {
	var req startRunRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	backend, err := req.validate()
	if err != nil {
		return err
	}

	if err := h.ws.StartRun(backend); err != nil {
		return fromDomainError(err, "run", "")
	}
	return c.JSON(http.StatusAccepted, h.ws.Runner.Status())
}

// HandleRunStatus returns the run controller snapshot
func (h *RunHandlerImpl) HandleRunStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.ws.Runner.Status())
}

type startRunRequest struct {
	Backend string `json:"backend"`
}

func (r *startRunRequest) validate() (models.Backend, error) {
	if r.Backend == "" {
		return models.BackendOCR, nil
	}
	backend, ok := models.ParseBackend(r.Backend)
	if !ok {
		return "", NewBadRequestError("backend must be \"ocr\" or \"gemini\"", nil)
	}
	return backend, nil
}
