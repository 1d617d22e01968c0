// Package resizer tracks results table column widths and the active header drag.
package resizer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/certscan/backend/internal/models"
)

const (
	// MinWidth is the narrowest a column can be dragged to.
	MinWidth = 50
	// DefaultWidth is the starting width of every column.
	DefaultWidth = 150
)

var (
	ErrUnknownColumn    = errors.New("unknown column")
	ErrResizeInProgress = errors.New("another column is being resized")
	ErrNotResizing      = errors.New("no column is being resized")
)

// Column is one header and its width.
type Column struct {
	Key   string `json:"key"`
	Width int    `json:"width"`
}

// Resizer holds one width per column. Only one drag is active at a time.
type Resizer struct {
	mu     sync.Mutex
	order  []string
	widths map[string]int

	active     string
	startX     float64
	startWidth int
}

// New creates a resizer for the category columns plus the file column.
func New() *Resizer {
	keys := make([]string, 0, len(models.Categories)+1)
	for _, c := range models.Categories {
		keys = append(keys, string(c))
	}
	keys = append(keys, models.FileLocationHeader)
	return NewWithColumns(keys, DefaultWidth)
}

// NewWithColumns creates a resizer for arbitrary header keys.
func NewWithColumns(keys []string, width int) *Resizer {
	r := &Resizer{
		order:  append([]string(nil), keys...),
		widths: make(map[string]int, len(keys)),
	}
	for _, k := range keys {
		r.widths[k] = max(width, MinWidth)
	}
	return r
}

// BeginResize records the pointer position and the column's current width.
func (r *Resizer) BeginResize(key string, x float64) (Column, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.widths[key]
	if !ok {
		return Column{}, fmt.Errorf("%w: %q", ErrUnknownColumn, key)
	}
	if r.active != "" {
		return Column{}, fmt.Errorf("%w: %q", ErrResizeInProgress, r.active)
	}
	r.active = key
	r.startX = x
	r.startWidth = w
	return Column{Key: key, Width: w}, nil
}

// Move sets the active column to its start width plus the pointer travel,
// never below MinWidth.
func (r *Resizer) Move(x float64) (Column, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == "" {
		return Column{}, ErrNotResizing
	}
	w := max(r.startWidth+int(x-r.startX), MinWidth)
	r.widths[r.active] = w
	return Column{Key: r.active, Width: w}, nil
}

// EndResize releases the active drag. Ending with no drag is a no-op.
func (r *Resizer) EndResize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = ""
}

// Active returns the key being resized, or "".
func (r *Resizer) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Widths returns every column in header order.
func (r *Resizer) Widths() []Column {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Column, len(r.order))
	for i, k := range r.order {
		out[i] = Column{Key: k, Width: r.widths[k]}
	}
	return out
}
