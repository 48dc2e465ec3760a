package core

import (
	"context"
	"fmt"

	"github.com/nilay/reportgen/internal/model"
)

type FileService struct {
	db DB
}

func NewFileService(db DB) *FileService {
	return &FileService{db: db}
}

func (s *FileService) Create(ctx context.Context, file *model.FileRecord) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO files (stored_name, original_name, content_type, path, category, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		file.StoredName, file.OriginalName, file.ContentType, file.Path, file.Category, file.CreatedAt,
	).Scan(&file.ID)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

func (s *FileService) GetByID(ctx context.Context, id int64) (*model.FileRecord, error) {
	var f model.FileRecord
	err := s.db.QueryRow(ctx,
		`SELECT id, stored_name, original_name, content_type, path, category, created_at
		 FROM files WHERE id = $1`, id,
	).Scan(&f.ID, &f.StoredName, &f.OriginalName, &f.ContentType, &f.Path, &f.Category, &f.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get file %d: %w", id, err)
	}
	return &f, nil
}
