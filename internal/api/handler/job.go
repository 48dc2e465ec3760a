package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/nilay/reportgen/internal/api/request"
	"github.com/nilay/reportgen/internal/api/response"
	"github.com/nilay/reportgen/internal/core"
	"github.com/nilay/reportgen/internal/model"
	"github.com/nilay/reportgen/internal/report"
)

// Runner executes a job synchronously to a terminal status.
type Runner interface {
	ExecuteNow(ctx context.Context, job *model.Job) (*report.Output, error)
}

type Job struct {
	svc    *core.JobService
	runner Runner
}

func NewJob(svc *core.JobService, runner Runner) *Job {
	return &Job{svc: svc, runner: runner}
}

func (h *Job) Get(w http.ResponseWriter, r *http.Request) {
	uid, err := request.RequireUID(chi.URLParam(r, "uid"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.svc.GetByUID(r.Context(), uid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.WriteError(w, http.StatusNotFound, "job not found")
			return
		}
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusOK, job)
}

func (h *Job) List(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.svc.List(r.Context())
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusOK, jobs)
}

// Run triggers a job immediately, bypassing the dispatch loop, and answers
// with the produced report name. The job row ends up SUCCESS or FAILED
// exactly as it would for a queued execution.
func (h *Job) Run(w http.ResponseWriter, r *http.Request) {
	uid, err := request.RequireUID(chi.URLParam(r, "uid"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.svc.GetByUID(r.Context(), uid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.WriteError(w, http.StatusNotFound, "job not found")
			return
		}
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out, err := h.runner.ExecuteNow(r.Context(), job)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]string{
		"job_uid": job.UID,
		"output":  out.Name,
	})
}
