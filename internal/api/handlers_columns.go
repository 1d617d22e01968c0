// handlers_columns.go - Column resize handlers
package api

import (
	"net/http"

	"github.com/certscan/backend/internal/workspace"
	"github.com/labstack/echo/v4"
)

// ColumnsHandlerImpl implements the ColumnsHandler interface
type ColumnsHandlerImpl struct {
	ws *workspace.Workspace
}

// NewColumnsHandler creates a new columns handler instance
func NewColumnsHandler(ws *workspace.Workspace) ColumnsHandler {
	return &ColumnsHandlerImpl{ws: ws}
}

// HandleGetColumns returns every column width in header order
func (h *ColumnsHandlerImpl) HandleGetColumns(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"columns": h.ws.Columns.Widths(),
		"active":  h.ws.Columns.Active(),
	})
}

// HandleResizeStart grabs the handle of one column
func (h *ColumnsHandlerImpl) HandleResizeStart(c echo.Context) error {
	key := c.Param("key")
	var req pointerRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	col, err := h.ws.Columns.BeginResize(key, req.X)
	if err != nil {
		return fromDomainError(err, "column", key)
	}
	return c.JSON(http.StatusOK, col)
}

// HandleResizeMove resizes the grabbed column
func (h *ColumnsHandlerImpl) HandleResizeMove(c echo.Context) error {
	var req pointerRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	col, err := h.ws.Columns.Move(req.X)
	if err != nil {
		return fromDomainError(err, "column", "")
	}
	return c.JSON(http.StatusOK, col)
}

// HandleResizeEnd releases the grabbed column
func (h *ColumnsHandlerImpl) HandleResizeEnd(c echo.Context) error {
	h.ws.Columns.EndResize()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"columns": h.ws.Columns.Widths(),
	})
}
