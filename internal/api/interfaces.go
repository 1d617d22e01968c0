// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"github.com/labstack/echo/v4"
)

// QueueHandler handles the pending file queue
type QueueHandler interface {
	HandleEnqueue(c echo.Context) error
	HandleGetQueue(c echo.Context) error
	HandleClearQueue(c echo.Context) error
	HandleRemoveEntry(c echo.Context) error
	HandleGetThumbnail(c echo.Context) error
	HandleListFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
}

// RunHandler handles starting and observing runs
type RunHandler interface {
	HandleStartRun(c echo.Context) error
	HandleRunStatus(c echo.Context) error
}

// ResultsHandler handles the results table and its export
type ResultsHandler interface {
	HandleGetResults(c echo.Context) error
	HandleGetResultsMsgpack(c echo.Context) error
	HandleUpdateCell(c echo.Context) error
	HandleClearResults(c echo.Context) error
	HandleExportCSV(c echo.Context) error
}

// ViewerHandler handles the image preview overlay
type ViewerHandler interface {
	HandleGetViewer(c echo.Context) error
	HandleOpenViewer(c echo.Context) error
	HandleCloseViewer(c echo.Context) error
	HandleDragStart(c echo.Context) error
	HandleDragMove(c echo.Context) error
	HandleDragEnd(c echo.Context) error
}

// ColumnsHandler handles results table column widths
type ColumnsHandler interface {
	HandleGetColumns(c echo.Context) error
	HandleResizeStart(c echo.Context) error
	HandleResizeMove(c echo.Context) error
	HandleResizeEnd(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// EventsHandler streams workspace events
type EventsHandler interface {
	HandleEvents(c echo.Context) error
}
