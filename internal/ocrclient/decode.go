package ocrclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/certscan/backend/internal/models"
)

// decodeFields picks the seven categories out of a reply object. Lists are
// joined with ", ", null and missing fields become "".
func decodeFields(raw map[string]json.RawMessage) models.ExtractedFields {
	fields := make(models.ExtractedFields, len(models.Categories))
	for _, c := range models.Categories {
		fields[c] = fieldText(raw[string(c)])
	}
	return fields
}

func fieldText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			if text := fieldText(item); text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, ", ")
	}

	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		if m, ok := v.(map[string]any); ok {
			return compactJSON(m)
		}
		return fmt.Sprint(v)
	}
	return string(raw)
}

func compactJSON(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(out)
}

// errorDetail extracts the FastAPI style {"detail": ...} message, falling
// back to the raw body.
func errorDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			return s
		}
		return string(bytes.TrimSpace(payload.Detail))
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "no detail"
	}
	return text
}
