// Package thumbnail renders small PNG previews of queued images on a bounded
// worker pool.
package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"sync"
	"time"

	"github.com/certscan/backend/internal/logging"
	"github.com/panjf2000/ants/v2"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	ErrNotFound = errors.New("thumbnail not found")
	ErrPending  = errors.New("thumbnail not ready")
	ErrFailed   = errors.New("thumbnail could not be rendered")
)

const (
	DefaultSize    = 96
	DefaultWorkers = 4
)

type status int

const (
	statusPending status = iota
	statusReady
	statusFailed
)

type entry struct {
	status status
	data   []byte
	// guards against a stale render landing after Drop and re-Submit
	token uint64
}

// Service renders thumbnails asynchronously and keeps them in memory.
type Service struct {
	pool   *ants.Pool
	size   int
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	token   uint64
	wg      sync.WaitGroup
}

// New starts a pool of workers rendering thumbnails no larger than size on
// either side.
func New(size, workers int, logger *slog.Logger) (*Service, error) {
	if size <= 0 {
		size = DefaultSize
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	logger = logging.Component(logger, "thumbnail")

	pool, err := ants.NewPool(
		workers,
		ants.WithOptions(ants.Options{
			MaxBlockingTasks: 1000,
			Nonblocking:      false,
			PanicHandler: func(p any) {
				logger.Error("thumbnail worker panic", "panic", p)
			},
			ExpiryDuration: 10 * time.Second,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create thumbnail pool: %w", err)
	}

	return &Service{
		pool:    pool,
		size:    size,
		logger:  logger,
		entries: make(map[string]*entry),
	}, nil
}

// Submit schedules a render of content under id.
func (s *Service) Submit(id string, content []byte) error {
	s.mu.Lock()
	s.token++
	tok := s.token
	s.entries[id] = &entry{status: statusPending, token: tok}
	s.mu.Unlock()

	s.wg.Add(1)
	err := s.pool.Submit(func() {
		defer s.wg.Done()
		data, err := Render(content, s.size)
		s.finish(id, tok, data, err)
	})
	if err != nil {
		s.wg.Done()
		s.finish(id, tok, nil, err)
		return fmt.Errorf("failed to schedule thumbnail: %w", err)
	}
	return nil
}

func (s *Service) finish(id string, tok uint64, data []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || e.token != tok {
		return
	}
	if err != nil {
		s.logger.Warn("skipping thumbnail", "id", id, "error", err)
		e.status = statusFailed
		return
	}
	e.status = statusReady
	e.data = data
}

// Get returns the PNG bytes for id once rendered.
func (s *Service) Get(id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	switch e.status {
	case statusPending:
		return nil, ErrPending
	case statusFailed:
		return nil, ErrFailed
	}
	return e.data, nil
}

// Drop forgets the thumbnail for id.
func (s *Service) Drop(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Wait blocks until every submitted render has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Release stops the worker pool.
func (s *Service) Release() {
	s.pool.Release()
}

// Render decodes content and scales it to fit within size x size, keeping
// the aspect ratio. Images already small enough are re-encoded unscaled.
func Render(content []byte, size int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := src.Bounds()
	w, h := fit(b.Dx(), b.Dy(), size)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

func fit(w, h, size int) (int, int) {
	if w <= size && h <= size {
		return w, h
	}
	if w >= h {
		return size, max(1, h*size/w)
	}
	return max(1, w*size/h), size
}
