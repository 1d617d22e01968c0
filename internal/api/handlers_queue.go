// handlers_queue.go - Queue and file content handlers
package api

import (
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/certscan/backend/internal/storage"
	"github.com/certscan/backend/internal/workspace"
	"github.com/labstack/echo/v4"
)

// QueueHandlerImpl implements the QueueHandler interface
type QueueHandlerImpl struct {
	ws *workspace.Workspace
}

// NewQueueHandler creates a new queue handler instance
func NewQueueHandler(ws *workspace.Workspace) QueueHandler {
	return &QueueHandlerImpl{ws: ws}
}

// HandleEnqueue accepts one or more images as multipart field "files"
func (h *QueueHandlerImpl) HandleEnqueue(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("expected multipart form data", err)
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		headers = form.File["file"]
	}
	if len(headers) == 0 {
		return NewValidationError("files")
	}

	added := make([]interface{}, 0, len(headers))
	var rejected []map[string]string
	for _, fh := range headers {
		src, err := fh.Open()
		if err != nil {
			return NewBadRequestError("failed to open uploaded file", err)
		}
		ref, err := h.ws.AddFile(fh.Filename, fh.Header.Get(echo.HeaderContentType), src)
		src.Close()
		if err != nil {
			apiErr := fromDomainError(err, "file", fh.Filename)
			if apiErr.Status != http.StatusBadRequest {
				return apiErr
			}
			rejected = append(rejected, map[string]string{"name": fh.Filename, "reason": err.Error()})
			continue
		}
		added = append(added, ref)
	}

	if len(added) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"code":     "VALIDATION_ERROR",
			"message":  "no acceptable image files in upload",
			"rejected": rejected,
		})
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"added":    added,
		"rejected": rejected,
		"queue":    h.ws.Snapshot(),
	})
}

// HandleGetQueue returns pending entries, history and the lock flag
func (h *QueueHandlerImpl) HandleGetQueue(c echo.Context) error {
	return c.JSON(http.StatusOK, h.ws.Snapshot())
}

// HandleClearQueue removes every pending entry
func (h *QueueHandlerImpl) HandleClearQueue(c echo.Context) error {
	n, err := h.ws.ClearQueue()
	if err != nil {
		return fromDomainError(err, "queue", "")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"removed": n,
	})
}

// HandleRemoveEntry removes one entry by ID, or by position with ?index=
func (h *QueueHandlerImpl) HandleRemoveEntry(c echo.Context) error {
	id := c.Param("id")
	if raw := c.QueryParam("index"); raw != "" {
		index, err := strconv.Atoi(raw)
		if err != nil {
			return NewBadRequestError("index must be an integer", err)
		}
		ref, err := h.ws.RemoveAt(index)
		if err != nil {
			return fromDomainError(err, "queue entry", raw)
		}
		return c.JSON(http.StatusOK, ref)
	}

	ref, err := h.ws.RemoveEntry(id)
	if err != nil {
		return fromDomainError(err, "queue entry", id)
	}
	return c.JSON(http.StatusOK, ref)
}

// HandleGetThumbnail returns the PNG preview of a queued file
func (h *QueueHandlerImpl) HandleGetThumbnail(c echo.Context) error {
	id := c.Param("id")
	data, err := h.ws.Thumbs.Get(id)
	if err != nil {
		return fromDomainError(err, "thumbnail", id)
	}
	c.Response().Header().Set("Cache-Control", "private, max-age=3600")
	return c.Blob(http.StatusOK, "image/png", data)
}

// HandleListFiles lists stored files, newest first. ?limit= caps the list.
func (h *QueueHandlerImpl) HandleListFiles(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return NewValidationError("limit")
		}
		limit = n
	}

	files, err := h.ws.Files(limit)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"files": files,
		"total": len(files),
	})
}

// HandleGetFile returns the original bytes of a stored file
func (h *QueueHandlerImpl) HandleGetFile(c echo.Context) error {
	id := c.Param("id")
	ref, err := h.ws.Blobs.Get(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return NewNotFoundError("file", id)
		}
		return NewInternalError("failed to read file", err)
	}
	data, err := h.ws.Blobs.Content(id)
	if err != nil {
		return fromDomainError(err, "file", id)
	}

	// Only raster images are shown inline. Markup types like SVG download.
	disposition := "inline"
	if !rasterMIMETypes[ref.MIMEType] {
		disposition = "attachment"
	}
	if v := mime.FormatMediaType(disposition, map[string]string{"filename": ref.Name}); v != "" {
		disposition = v
	}
	header := c.Response().Header()
	header.Set(echo.HeaderContentDisposition, disposition)
	header.Set(echo.HeaderContentSecurityPolicy, "sandbox")
	header.Set(echo.HeaderXContentTypeOptions, "nosniff")
	return c.Blob(http.StatusOK, ref.MIMEType, data)
}

var rasterMIMETypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/bmp":  true,
	"image/tiff": true,
	"image/webp": true,
	"image/avif": true,
}
