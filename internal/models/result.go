package models

import "time"

// ResultRow is one rendered line of the results table.
type ResultRow struct {
	ID        string    `json:"id" msgpack:"id"`
	Cells     []string  `json:"cells" msgpack:"cells"` // indexed like Categories
	FileID    string    `json:"fileId" msgpack:"fileId"`
	FileName  string    `json:"fileName" msgpack:"fileName"`
	CreatedAt time.Time `json:"createdAt" msgpack:"createdAt"`
}

// Cell returns the displayed text for c.
func (r ResultRow) Cell(c Category) string {
	i := c.Index()
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return r.Cells[i]
}
