package results

import (
	"bufio"
	"io"
	"strings"

	"github.com/certscan/backend/internal/models"
)

// ExportFileName is the download name of the CSV export.
const ExportFileName = "ocr_results.csv"

// Header returns the export header: the categories then the file column.
func Header() []string {
	h := make([]string, 0, len(models.Categories)+1)
	for _, c := range models.Categories {
		h = append(h, string(c))
	}
	return append(h, models.FileLocationHeader)
}

// WriteCSV serializes the table as displayed, edits included. The header
// row is bare; every data field is double-quoted with quotes doubled.
// encoding/csv only quotes fields that need it, so records are written by hand.
func (t *Table) WriteCSV(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(Header(), ",") + "\n"); err != nil {
		return err
	}
	for _, row := range t.Rows() {
		fields := append(append([]string{}, row.Cells...), row.FileName)
		for i, f := range fields {
			if i > 0 {
				if err := bw.WriteByte(','); err != nil {
					return err
				}
			}
			if _, err := bw.WriteString(quote(f)); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
