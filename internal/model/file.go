package model

import "time"

// FileCategory distinguishes uploaded inputs from generated reports.
type FileCategory string

const (
	FileCategoryInput  FileCategory = "INPUT"
	FileCategoryOutput FileCategory = "OUTPUT"
)

// FileRecord is the metadata row for a file on local disk. Records are
// immutable once created.
type FileRecord struct {
	ID           int64        `json:"id"`
	StoredName   string       `json:"stored_name"`
	OriginalName string       `json:"original_name"`
	ContentType  string       `json:"content_type"`
	Path         string       `json:"path"`
	Category     FileCategory `json:"category"`
	CreatedAt    time.Time    `json:"created_at"`
}
