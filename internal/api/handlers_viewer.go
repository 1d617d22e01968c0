// handlers_viewer.go - Image viewer overlay handlers
package api

import (
	"net/http"

	"github.com/certscan/backend/internal/viewer"
	"github.com/certscan/backend/internal/workspace"
	"github.com/labstack/echo/v4"
)

// ViewerHandlerImpl implements the ViewerHandler interface
type ViewerHandlerImpl struct {
	ws *workspace.Workspace
}

// NewViewerHandler creates a new viewer handler instance
func NewViewerHandler(ws *workspace.Workspace) ViewerHandler {
	return &ViewerHandlerImpl{ws: ws}
}

// HandleGetViewer returns the overlay state
func (h *ViewerHandlerImpl) HandleGetViewer(c echo.Context) error {
	return c.JSON(http.StatusOK, h.ws.Viewer.State())
}

// HandleOpenViewer shows the image behind a result row or a stored file
func (h *ViewerHandlerImpl) HandleOpenViewer(c echo.Context) error {
	var req openViewerRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	ctx := c.Request().Context()
	var (
		state viewer.State
		err   error
	)
	if req.RowID != "" {
		state, err = h.ws.OpenViewer(ctx, req.RowID)
		if err != nil {
			return fromDomainError(err, "result row", req.RowID)
		}
	} else {
		state, err = h.ws.OpenFile(ctx, req.FileID)
		if err != nil {
			return fromDomainError(err, "file", req.FileID)
		}
	}
	return c.JSON(http.StatusOK, state)
}

// HandleCloseViewer hides the overlay
func (h *ViewerHandlerImpl) HandleCloseViewer(c echo.Context) error {
	return c.JSON(http.StatusOK, h.ws.Viewer.Close())
}

// HandleDragStart begins a drag if the pointer is on the header
func (h *ViewerHandlerImpl) HandleDragStart(c echo.Context) error {
	var req pointerRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	region := viewer.Region(req.Region)
	if region == "" {
		region = viewer.RegionHeader
	}
	started := h.ws.Viewer.BeginDrag(req.X, req.Y, region)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"started": started,
		"state":   h.ws.Viewer.State(),
	})
}

// HandleDragMove moves the overlay with the pointer
func (h *ViewerHandlerImpl) HandleDragMove(c echo.Context) error {
	var req pointerRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	return c.JSON(http.StatusOK, h.ws.Viewer.Drag(req.X, req.Y))
}

// HandleDragEnd releases the overlay
func (h *ViewerHandlerImpl) HandleDragEnd(c echo.Context) error {
	return c.JSON(http.StatusOK, h.ws.Viewer.EndDrag())
}

type openViewerRequest struct {
	RowID  string `json:"rowId"`
	FileID string `json:"fileId"`
}

func (r *openViewerRequest) validate() error {
	if r.RowID == "" && r.FileID == "" {
		return NewValidationError("rowId")
	}
	return nil
}

type pointerRequest struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Region string  `json:"region,omitempty"`
}
