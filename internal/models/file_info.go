package models

import "time"

// FileRef represents an image the user queued for extraction. The bytes live
// in the blob store under ID.
type FileRef struct {
	ID       string    `json:"id" msgpack:"id"`
	Name     string    `json:"name" msgpack:"name"`
	MIMEType string    `json:"mimeType" msgpack:"mimeType"`
	Size     int64     `json:"size" msgpack:"size"`
	AddedAt  time.Time `json:"addedAt" msgpack:"addedAt"`
}

// HistoryEntry records a file whose extraction succeeded.
type HistoryEntry struct {
	File        FileRef   `json:"file"`
	ProcessedAt time.Time `json:"processedAt"`
}
