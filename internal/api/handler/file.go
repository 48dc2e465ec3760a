package handler

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/nilay/reportgen/internal/api/response"
	"github.com/nilay/reportgen/internal/core"
)

type File struct {
	svc *core.FileService
}

func NewFile(svc *core.FileService) *File {
	return &File{svc: svc}
}

// Download streams a stored file with its original name as the attachment
// name. Works for generated reports and uploaded inputs alike.
func (h *File) Download(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, "invalid file id")
		return
	}

	rec, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.WriteError(w, http.StatusNotFound, "file not found")
			return
		}
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if _, err := os.Stat(rec.Path); err != nil {
		response.WriteError(w, http.StatusNotFound, "file missing on disk")
		return
	}

	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.OriginalName))
	http.ServeFile(w, r, rec.Path)
}
