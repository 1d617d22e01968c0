// Package results keeps the rendered extraction rows and exports them.
package results

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/certscan/backend/internal/models"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrRowNotFound is returned for unknown row IDs.
	ErrRowNotFound = errors.New("result row not found")
	// ErrUnknownCategory is returned when editing a column that is not a category.
	ErrUnknownCategory = errors.New("unknown category")
)

// Table is the ordered list of result rows. Row order is completion order.
// Cell edits change what is displayed and exported, nothing else.
type Table struct {
	mu   sync.RWMutex
	rows []models.ResultRow
	now  func() time.Time
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{now: time.Now}
}

// Append renders one extraction result for file as a new row.
func (t *Table) Append(fields models.ExtractedFields, file models.FileRef) models.ResultRow {
	cells := make([]string, len(models.Categories))
	for i, c := range models.Categories {
		cells[i] = fields.Get(c)
	}
	row := models.ResultRow{
		ID:        uuid.New().String(),
		Cells:     cells,
		FileID:    file.ID,
		FileName:  file.Name,
		CreatedAt: t.now(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = append(t.rows, row)
	return cloneRow(row)
}

// Rows returns a snapshot of every row.
func (t *Table) Rows() []models.ResultRow {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]models.ResultRow, len(t.rows))
	for i, r := range t.rows {
		out[i] = cloneRow(r)
	}
	return out
}

// Row returns one row by ID.
func (t *Table) Row(id string) (models.ResultRow, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, r := range t.rows {
		if r.ID == id {
			return cloneRow(r), nil
		}
	}
	return models.ResultRow{}, fmt.Errorf("%w: %s", ErrRowNotFound, id)
}

// UpdateCell replaces the displayed text of one cell.
func (t *Table) UpdateCell(rowID string, category models.Category, text string) (models.ResultRow, error) {
	idx := category.Index()
	if idx < 0 {
		return models.ResultRow{}, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.rows {
		if t.rows[i].ID == rowID {
			t.rows[i].Cells[idx] = text
			return cloneRow(t.rows[i]), nil
		}
	}
	return models.ResultRow{}, fmt.Errorf("%w: %s", ErrRowNotFound, rowID)
}

// Clear removes every row and returns the removed rows in table order.
func (t *Table) Clear() []models.ResultRow {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := t.rows
	t.rows = nil
	return removed
}

// Len returns the number of rows.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// MarshalMsgpack encodes the rows for the binary results endpoint.
func (t *Table) MarshalMsgpack() ([]byte, error) {
	rows := t.Rows()
	return msgpack.Marshal(map[string]interface{}{
		"columns": Header(),
		"rows":    rows,
		"total":   len(rows),
	})
}

func cloneRow(r models.ResultRow) models.ResultRow {
	cells := make([]string, len(r.Cells))
	copy(cells, r.Cells)
	r.Cells = cells
	return r
}
