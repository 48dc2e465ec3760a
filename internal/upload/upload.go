// Package upload validates and stores multipart document batches.
package upload

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nilay/reportgen/internal/core"
	"github.com/nilay/reportgen/internal/model"
)

// ValidationError rejects a whole batch before any job is created.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid upload: " + e.Reason
}

var allowedExtensions = map[string]struct{}{
	".csv":  {},
	".json": {},
	".xlsx": {},
}

// Saver validates an uploaded batch and persists each file to disk plus a
// files row. A batch is all-or-nothing: one bad file discards every sibling
// already written.
type Saver struct {
	files    *core.FileService
	dir      string
	maxBytes int64
	log      zerolog.Logger

	now func() time.Time
}

func NewSaver(files *core.FileService, dir string, maxBytes int64, log zerolog.Logger) *Saver {
	return &Saver{
		files:    files,
		dir:      dir,
		maxBytes: maxBytes,
		log:      log.With().Str("component", "upload").Logger(),
		now:      time.Now,
	}
}

// IsCSV reports whether a file header names a CSV document. Other allowed
// extensions are accepted for storage but never scheduled.
func IsCSV(header *multipart.FileHeader) bool {
	return strings.EqualFold(filepath.Ext(header.Filename), ".csv")
}

// Validate checks the batch against the extension allow-list and the
// combined size limit without touching disk.
func (s *Saver) Validate(headers []*multipart.FileHeader) error {
	if len(headers) == 0 {
		return &ValidationError{Reason: "no files in batch"}
	}

	var total int64
	for _, h := range headers {
		ext := strings.ToLower(filepath.Ext(h.Filename))
		if _, ok := allowedExtensions[ext]; !ok {
			return &ValidationError{Reason: fmt.Sprintf("file %q has unsupported extension %q", h.Filename, ext)}
		}
		total += h.Size
	}
	if total > s.maxBytes {
		return &ValidationError{Reason: fmt.Sprintf("batch size %d exceeds limit %d", total, s.maxBytes)}
	}
	return nil
}

// SaveBatch validates the batch, writes every file under the document
// directory and records a files row per file. On any failure all files
// written so far are removed and nothing is recorded.
func (s *Saver) SaveBatch(ctx context.Context, headers []*multipart.FileHeader) ([]model.FileRecord, error) {
	if err := s.Validate(headers); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure document directory: %w", err)
	}

	var saved []string
	discard := func() {
		for _, path := range saved {
			if err := os.Remove(path); err != nil {
				s.log.Warn().Err(err).Str("path", path).Msg("remove discarded upload")
			}
		}
	}

	records := make([]model.FileRecord, 0, len(headers))
	for _, h := range headers {
		path, err := s.saveOne(h)
		if err != nil {
			discard()
			return nil, err
		}
		saved = append(saved, path)

		contentType := h.Header.Get("Content-Type")
		if mt, err := mimetype.DetectFile(path); err == nil {
			contentType = mt.String()
		}

		records = append(records, model.FileRecord{
			StoredName:   filepath.Base(path),
			OriginalName: h.Filename,
			ContentType:  contentType,
			Path:         path,
			Category:     model.FileCategoryInput,
			CreatedAt:    s.now(),
		})
	}

	for i := range records {
		if err := s.files.Create(ctx, &records[i]); err != nil {
			discard()
			return nil, err
		}
	}
	return records, nil
}

func (s *Saver) saveOne(h *multipart.FileHeader) (string, error) {
	src, err := h.Open()
	if err != nil {
		return "", fmt.Errorf("open upload %q: %w", h.Filename, err)
	}
	defer src.Close()

	name := storedName(h.Filename, s.now())
	path := filepath.Join(s.dir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create document %q: %w", name, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write document %q: %w", name, err)
	}
	return path, nil
}

// storedName builds a collision-resistant on-disk name: a short random
// prefix, the upload date and the original extension.
func storedName(original string, now time.Time) string {
	prefix := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	return prefix + now.UTC().Format("060102") + strings.ToLower(filepath.Ext(original))
}
