// Package workspace owns the state behind one console page: the queue and
// its blobs, the results table, the viewer, column widths, and the run
// controller. Everything is in memory.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/certscan/backend/internal/config"
	"github.com/certscan/backend/internal/logging"
	"github.com/certscan/backend/internal/models"
	"github.com/certscan/backend/internal/notify"
	"github.com/certscan/backend/internal/queue"
	"github.com/certscan/backend/internal/resizer"
	"github.com/certscan/backend/internal/results"
	"github.com/certscan/backend/internal/run"
	"github.com/certscan/backend/internal/storage"
	"github.com/certscan/backend/internal/thumbnail"
	"github.com/certscan/backend/internal/viewer"
)

var (
	// ErrUnsupportedType is returned for uploads outside the allowed MIME prefix.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrEmptyFile is returned for zero-byte uploads.
	ErrEmptyFile = errors.New("file is empty")
)

// QueueSnapshot is the queue as the page shows it.
type QueueSnapshot struct {
	Pending []models.FileRef      `json:"pending"`
	History []models.HistoryEntry `json:"history"`
	Locked  bool                  `json:"locked"`
}

// Workspace bundles the components and keeps them consistent with each
// other. Handlers go through it rather than mutating components directly.
type Workspace struct {
	Blobs   storage.Store
	Queue   *queue.Store
	Results *results.Table
	Viewer  *viewer.Viewer
	Columns *resizer.Resizer
	Thumbs  *thumbnail.Service
	Runner  *run.Controller
	Events  *notify.Hub

	allowedPrefix string
	runCtx        context.Context
	logger        *slog.Logger
}

// New builds a workspace from configuration. Runs started through the
// workspace live as long as ctx, not as long as the request that started them.
func New(ctx context.Context, cfg *config.AppConfig, client run.Extractor, logger *slog.Logger) (*Workspace, error) {
	hub := notify.NewHub(logger)
	blobs := storage.NewMemoryStore()
	q := queue.NewStore()
	table := results.NewTable()

	thumbs, err := thumbnail.New(cfg.Queue.ThumbnailSize, cfg.Queue.ThumbnailWorkers, logger)
	if err != nil {
		return nil, err
	}

	base, maxDelay := cfg.AvailabilityBackoff()
	runner := run.NewController(q, blobs, table, client, hub,
		run.WithMaxAttempts(cfg.Run.MaxAttempts),
		run.WithRetryDelay(cfg.RetryDelay()),
		run.WithAvailabilityPolicy(cfg.Run.AvailabilityAttempts, base, maxDelay),
		run.WithLogger(logger),
	)

	return &Workspace{
		Blobs:         blobs,
		Queue:         q,
		Results:       table,
		Viewer:        viewer.New(),
		Columns:       resizer.New(),
		Thumbs:        thumbs,
		Runner:        runner,
		Events:        hub,
		allowedPrefix: cfg.Queue.AllowedMIMEPrefix,
		runCtx:        ctx,
		logger:        logging.Component(logger, "workspace"),
	}, nil
}

// AddFile stores an uploaded image and appends it to the queue.
func (w *Workspace) AddFile(name, mimeType string, r io.Reader) (models.FileRef, error) {
	if w.Queue.Locked() {
		return models.FileRef{}, queue.ErrLocked
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return models.FileRef{}, fmt.Errorf("reading %s: %w", name, err)
	}
	if len(data) == 0 {
		return models.FileRef{}, fmt.Errorf("%w: %s", ErrEmptyFile, name)
	}

	mimeType = resolveMIMEType(mimeType, data)
	if w.allowedPrefix != "" && !strings.HasPrefix(mimeType, w.allowedPrefix) {
		return models.FileRef{}, fmt.Errorf("%w: %s is %s", ErrUnsupportedType, name, mimeType)
	}

	ref, err := w.Blobs.SaveBytes(name, mimeType, data)
	if err != nil {
		return models.FileRef{}, err
	}
	if err := w.Queue.Enqueue(*ref); err != nil {
		_ = w.Blobs.Delete(ref.ID)
		return models.FileRef{}, err
	}
	if err := w.Thumbs.Submit(ref.ID, data); err != nil {
		w.logger.Warn("thumbnail not scheduled", "file", name, "error", err)
	}

	w.logger.Debug("file queued", "id", ref.ID, "file", name, "size", ref.Size)
	w.publishQueue()
	return *ref, nil
}

// RemoveEntry drops a pending entry and its content.
func (w *Workspace) RemoveEntry(id string) (models.FileRef, error) {
	ref, err := w.Queue.Remove(id)
	if err != nil {
		return models.FileRef{}, err
	}
	w.discard(ref)
	w.publishQueue()
	return ref, nil
}

// RemoveAt drops the pending entry at index.
func (w *Workspace) RemoveAt(index int) (models.FileRef, error) {
	ref, err := w.Queue.RemoveAt(index)
	if err != nil {
		return models.FileRef{}, err
	}
	w.discard(ref)
	w.publishQueue()
	return ref, nil
}

// ClearQueue drops every pending entry.
func (w *Workspace) ClearQueue() (int, error) {
	removed, err := w.Queue.Clear()
	if err != nil {
		return 0, err
	}
	for _, ref := range removed {
		w.discard(ref)
	}
	w.publishQueue()
	return len(removed), nil
}

// discard frees what an unprocessed entry held. Processed files keep their
// content so the viewer can still open them from the table.
func (w *Workspace) discard(ref models.FileRef) {
	if err := w.Blobs.Delete(ref.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		w.logger.Warn("failed to delete file content", "id", ref.ID, "error", err)
	}
	w.Thumbs.Drop(ref.ID)
	w.Viewer.Forget(ref.ID)
}

// StoredFile is a stored file and whether it is still waiting in the queue.
type StoredFile struct {
	models.FileRef
	Pending bool `json:"pending"`
}

// Files lists stored content, newest first. Processed files stay stored
// until the results table is cleared.
func (w *Workspace) Files(limit int) ([]StoredFile, error) {
	refs, err := w.Blobs.List(limit)
	if err != nil {
		return nil, err
	}
	pending := make(map[string]bool)
	for _, ref := range w.Queue.List() {
		pending[ref.ID] = true
	}
	files := make([]StoredFile, 0, len(refs))
	for _, ref := range refs {
		files = append(files, StoredFile{FileRef: *ref, Pending: pending[ref.ID]})
	}
	return files, nil
}

// Snapshot returns the queue, the history, and the lock flag.
func (w *Workspace) Snapshot() QueueSnapshot {
	return QueueSnapshot{
		Pending: w.Queue.List(),
		History: w.Queue.History(),
		Locked:  w.Queue.Locked(),
	}
}

// StartRun begins processing the queue in the background.
func (w *Workspace) StartRun(backend models.Backend) error {
	return w.Runner.Start(w.runCtx, backend)
}

// UpdateCell edits one displayed result value.
func (w *Workspace) UpdateCell(rowID string, category models.Category, text string) (models.ResultRow, error) {
	row, err := w.Results.UpdateCell(rowID, category, text)
	if err != nil {
		return models.ResultRow{}, err
	}
	w.Events.Publish(notify.Event{Type: notify.EventResultUpdated, Payload: row})
	return row, nil
}

// ClearResults empties the table and frees the content of processed files.
func (w *Workspace) ClearResults() int {
	rows := w.Results.Clear()

	pending := make(map[string]bool)
	for _, ref := range w.Queue.List() {
		pending[ref.ID] = true
	}
	for _, row := range rows {
		if pending[row.FileID] {
			continue
		}
		w.Viewer.Forget(row.FileID)
		w.Thumbs.Drop(row.FileID)
		if err := w.Blobs.Delete(row.FileID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			w.logger.Warn("failed to delete file content", "id", row.FileID, "error", err)
		}
	}

	w.Events.Publish(notify.Event{Type: notify.EventResultsReset, Payload: len(rows)})
	return len(rows)
}

// OpenViewer shows the image behind a results row.
func (w *Workspace) OpenViewer(ctx context.Context, rowID string) (viewer.State, error) {
	row, err := w.Results.Row(rowID)
	if err != nil {
		return viewer.State{}, err
	}
	return w.OpenFile(ctx, row.FileID)
}

// OpenFile shows a stored file in the viewer.
func (w *Workspace) OpenFile(ctx context.Context, fileID string) (viewer.State, error) {
	ref, err := w.Blobs.Get(fileID)
	if err != nil {
		return viewer.State{}, err
	}
	content, err := w.Blobs.Content(fileID)
	if err != nil {
		return viewer.State{}, err
	}
	return w.Viewer.Show(ctx, *ref, content)
}

// Close waits for an active run to stop and releases the thumbnail pool.
func (w *Workspace) Close(ctx context.Context) error {
	err := w.Runner.Wait(ctx)
	w.Thumbs.Release()
	return err
}

func (w *Workspace) publishQueue() {
	w.Events.Publish(notify.Event{
		Type:      notify.EventQueueUpdated,
		Payload:   w.Queue.List(),
		Timestamp: time.Now(),
	})
}

func resolveMIMEType(declared string, data []byte) string {
	declared = strings.TrimSpace(strings.ToLower(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return http.DetectContentType(data[:min(len(data), 512)])
}
