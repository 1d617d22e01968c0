// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/certscan/backend/internal/config"
	"github.com/certscan/backend/internal/logging"
	"github.com/certscan/backend/internal/workspace"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Workspace  *workspace.Workspace
	OCRBaseURL string
	Version    string
	Logger     *slog.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	Queue   QueueHandler
	Run     RunHandler
	Results ResultsHandler
	Viewer  ViewerHandler
	Columns ColumnsHandler
	Events  EventsHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(deps.Version, deps.OCRBaseURL),
		Queue:   NewQueueHandler(deps.Workspace),
		Run:     NewRunHandler(deps.Workspace),
		Results: NewResultsHandler(deps.Workspace),
		Viewer:  NewViewerHandler(deps.Workspace),
		Columns: NewColumnsHandler(deps.Workspace),
		Events:  NewWebSocketHandler(deps.Workspace, deps.Logger),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Queue routes
	queueGroup := apiGroup.Group("/queue")
	queueGroup.POST("", handlers.Queue.HandleEnqueue)
	queueGroup.GET("", handlers.Queue.HandleGetQueue)
	queueGroup.DELETE("", handlers.Queue.HandleClearQueue)
	queueGroup.DELETE("/:id", handlers.Queue.HandleRemoveEntry)
	queueGroup.GET("/:id/thumbnail", handlers.Queue.HandleGetThumbnail)

	apiGroup.GET("/files", handlers.Queue.HandleListFiles)
	apiGroup.GET("/files/:id", handlers.Queue.HandleGetFile)

	// Run routes
	apiGroup.POST("/run", handlers.Run.HandleStartRun)
	apiGroup.GET("/run", handlers.Run.HandleRunStatus)

	// Results routes
	resultsGroup := apiGroup.Group("/results")
	resultsGroup.GET("", handlers.Results.HandleGetResults)
	resultsGroup.GET("/msgpack", handlers.Results.HandleGetResultsMsgpack)
	resultsGroup.GET("/export.csv", handlers.Results.HandleExportCSV)
	resultsGroup.PUT("/:rowId/cells/:category", handlers.Results.HandleUpdateCell)
	resultsGroup.DELETE("", handlers.Results.HandleClearResults)

	// Viewer routes
	viewerGroup := apiGroup.Group("/viewer")
	viewerGroup.GET("", handlers.Viewer.HandleGetViewer)
	viewerGroup.DELETE("", handlers.Viewer.HandleCloseViewer)
	viewerGroup.POST("/open", handlers.Viewer.HandleOpenViewer)
	viewerGroup.POST("/drag/start", handlers.Viewer.HandleDragStart)
	viewerGroup.POST("/drag/move", handlers.Viewer.HandleDragMove)
	viewerGroup.POST("/drag/end", handlers.Viewer.HandleDragEnd)

	// Column routes
	columnsGroup := apiGroup.Group("/columns")
	columnsGroup.GET("", handlers.Columns.HandleGetColumns)
	columnsGroup.POST("/:key/resize/start", handlers.Columns.HandleResizeStart)
	columnsGroup.POST("/resize/move", handlers.Columns.HandleResizeMove)
	columnsGroup.POST("/resize/end", handlers.Columns.HandleResizeEnd)

	RegisterWebSocketRoutes(e, handlers)
}

// RegisterWebSocketRoutes registers WebSocket routes
func RegisterWebSocketRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/api/ws/events", handlers.Events.HandleEvents)
}

// SetupMiddleware configures common middleware from the server config
func SetupMiddleware(e *echo.Echo, cfg *config.AppConfig, logger *slog.Logger) {
	e.HTTPErrorHandler = NewErrorHandler(logging.Component(logger, "api"))

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/thumbnail") ||
				path == "/api/run" && c.Request().Method == http.MethodGet ||
				path == "/api/health"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			return isStreamingRequest(c)
		},
		ErrorMessage: "Request timeout - operation took too long",
	}))

	// Compression middleware
	if cfg.Server.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.Server.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				return isStreamingRequest(c)
			},
		}))
	}

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:  origins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
			ExposeHeaders: []string{echo.HeaderContentDisposition},
		}))
	}
}

func isStreamingRequest(c echo.Context) bool {
	path := c.Request().URL.Path
	return strings.HasPrefix(path, "/api/ws/") ||
		strings.HasSuffix(path, "/export.csv") ||
		c.Request().Header.Get(echo.HeaderUpgrade) != ""
}
