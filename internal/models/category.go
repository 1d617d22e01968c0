// Package models contains domain types for the certificate OCR console.
package models

import "strings"

// Category is one of the fixed structured fields extracted per document.
type Category string

const (
	CategoryType        Category = "TYPE"
	CategoryAwardee     Category = "AWARDEE"
	CategoryRole        Category = "ROLE"
	CategoryEvent       Category = "EVENT"
	CategoryDate        Category = "DATE"
	CategoryLocation    Category = "LOCATION"
	CategorySignatories Category = "SIGNATORIES"
)

// FileLocationHeader labels the column holding the source file name.
const FileLocationHeader = "FILE LOCATION"

// Categories lists the extracted fields in table order.
var Categories = []Category{
	CategoryType,
	CategoryAwardee,
	CategoryRole,
	CategoryEvent,
	CategoryDate,
	CategoryLocation,
	CategorySignatories,
}

// ParseCategory resolves a category name case-insensitively.
func ParseCategory(name string) (Category, bool) {
	upper := Category(strings.ToUpper(strings.TrimSpace(name)))
	for _, c := range Categories {
		if c == upper {
			return c, true
		}
	}
	return "", false
}

// Index returns the column position of c, or -1.
func (c Category) Index() int {
	for i, cat := range Categories {
		if cat == c {
			return i
		}
	}
	return -1
}

// ExtractedFields maps each category to the text a backend extracted for it.
type ExtractedFields map[Category]string

// Get returns the value for c, or "" when the backend left it out.
func (f ExtractedFields) Get(c Category) string {
	if f == nil {
		return ""
	}
	return f[c]
}
