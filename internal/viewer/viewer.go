// Package viewer owns the single image preview overlay and its drag position.
package viewer

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"
	"sync"

	"github.com/certscan/backend/internal/models"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	// ErrUndecodable is returned when the content is not a supported image.
	ErrUndecodable = errors.New("image cannot be decoded")
	// ErrSuperseded is returned by Show when a later Show replaced it.
	ErrSuperseded = errors.New("viewer content replaced by a newer request")
)

// Region identifies which part of the overlay a pointer went down on.
type Region string

const (
	RegionHeader Region = "header"
	RegionBody   Region = "body"
)

// Offset is the overlay's translation away from the centered position.
type Offset struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// State is a snapshot of the overlay.
type State struct {
	Visible   bool   `json:"visible"`
	Title     string `json:"title"`
	FileID    string `json:"fileId,omitempty"`
	Source    string `json:"source,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Format    string `json:"format,omitempty"`
	Offset    Offset `json:"offset"`
	Transform string `json:"transform"`
	Dragging  bool   `json:"dragging"`
}

// Viewer is safe for concurrent use. The most recent Show wins.
type Viewer struct {
	mu         sync.Mutex
	generation uint64
	state      State

	dragging   bool
	dragStartX float64
	dragStartY float64
	dragOrigin Offset
}

// New returns a hidden viewer.
func New() *Viewer {
	return &Viewer{}
}

// Show displays content titled with the file name. Dimensions are read from
// the image header when a decoder for the format is registered. The drag
// offset is reset on every open.
func (v *Viewer) Show(ctx context.Context, file models.FileRef, content []byte) (State, error) {
	v.mu.Lock()
	v.generation++
	gen := v.generation
	v.mu.Unlock()

	mime := file.MIMEType
	if mime == "" {
		mime = http.DetectContentType(content)
	}

	// Image types without a registered decoder are shown without dimensions.
	cfg, format, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		if !errors.Is(err, image.ErrFormat) || !strings.HasPrefix(mime, "image/") {
			return State{}, fmt.Errorf("%w: %s: %v", ErrUndecodable, file.Name, err)
		}
		cfg = image.Config{}
		format = strings.TrimPrefix(mime, "image/")
	}
	if err := ctx.Err(); err != nil {
		return State{}, err
	}

	src := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(content)

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.generation {
		return State{}, ErrSuperseded
	}
	v.dragging = false
	v.state = State{
		Visible: true,
		Title:   file.Name,
		FileID:  file.ID,
		Source:  src,
		Width:   cfg.Width,
		Height:  cfg.Height,
		Format:  format,
	}
	return v.snapshot(), nil
}

// Close hides the overlay and recenters it.
func (v *Viewer) Close() State {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.generation++
	v.dragging = false
	v.state = State{}
	return v.snapshot()
}

// BeginDrag starts a drag when the pointer went down on the header. It
// reports whether a drag started.
func (v *Viewer) BeginDrag(x, y float64, region Region) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.state.Visible || region != RegionHeader {
		return false
	}
	v.dragging = true
	v.dragStartX, v.dragStartY = x, y
	v.dragOrigin = v.state.Offset
	return true
}

// Drag moves the overlay by the pointer's travel since BeginDrag.
func (v *Viewer) Drag(x, y float64) State {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.dragging {
		v.state.Offset = Offset{
			X: v.dragOrigin.X + (x - v.dragStartX),
			Y: v.dragOrigin.Y + (y - v.dragStartY),
		}
	}
	return v.snapshot()
}

// EndDrag releases the overlay where it is.
func (v *Viewer) EndDrag() State {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.dragging = false
	return v.snapshot()
}

// State returns the current snapshot.
func (v *Viewer) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshot()
}

// Forget closes the viewer if it is showing fileID.
func (v *Viewer) Forget(fileID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.state.Visible || v.state.FileID != fileID {
		return false
	}
	v.generation++
	v.dragging = false
	v.state = State{}
	return true
}

func (v *Viewer) snapshot() State {
	s := v.state
	s.Dragging = v.dragging
	s.Transform = transform(s.Offset)
	return s
}

func transform(o Offset) string {
	if o.X == 0 && o.Y == 0 {
		return "translateX(-50%)"
	}
	return fmt.Sprintf("translate(calc(-50%% + %gpx), %gpx)", o.X, o.Y)
}
