// handlers_results.go - Results table handlers
package api

import (
	"bytes"
	"net/http"

	"github.com/certscan/backend/internal/models"
	"github.com/certscan/backend/internal/results"
	"github.com/certscan/backend/internal/workspace"
	"github.com/labstack/echo/v4"
)

// ResultsHandlerImpl implements the ResultsHandler interface
type ResultsHandlerImpl struct {
	ws *workspace.Workspace
}

// NewResultsHandler creates a new results handler instance
func NewResultsHandler(ws *workspace.Workspace) ResultsHandler {
	return &ResultsHandlerImpl{ws: ws}
}

// HandleGetResults returns every row with the column headers
func (h *ResultsHandlerImpl) HandleGetResults(c echo.Context) error {
	rows := h.ws.Results.Rows()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"columns": results.Header(),
		"rows":    rows,
		"total":   len(rows),
	})
}

// HandleGetResultsMsgpack returns the rows msgpack-encoded
func (h *ResultsHandlerImpl) HandleGetResultsMsgpack(c echo.Context) error {
	data, err := h.ws.Results.MarshalMsgpack()
	if err != nil {
		return NewInternalError("failed to encode results", err)
	}
	return c.Blob(http.StatusOK, "application/x-msgpack", data)
}

// HandleUpdateCell replaces the text of one cell
func (h *ResultsHandlerImpl) HandleUpdateCell(c echo.Context) error {
	rowID := c.Param("rowId")
	category, ok := models.ParseCategory(c.Param("category"))
	if !ok {
		return NewBadRequestError("unknown category: "+c.Param("category"), nil)
	}

	var req updateCellRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	row, err := h.ws.UpdateCell(rowID, category, *req.Text)
	if err != nil {
		return fromDomainError(err, "result row", rowID)
	}
	return c.JSON(http.StatusOK, row)
}

// HandleClearResults empties the table
func (h *ResultsHandlerImpl) HandleClearResults(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"removed": h.ws.ClearResults(),
	})
}

// HandleExportCSV downloads the table as displayed
func (h *ResultsHandlerImpl) HandleExportCSV(c echo.Context) error {
	var buf bytes.Buffer
	if err := h.ws.Results.WriteCSV(&buf); err != nil {
		return NewInternalError("failed to export results", err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+results.ExportFileName+`"`)
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

type updateCellRequest struct {
	Text *string `json:"text"`
}

func (r *updateCellRequest) validate() error {
	if r.Text == nil {
		return NewValidationError("text")
	}
	return nil
}
