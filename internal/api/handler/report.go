package handler

import (
	"errors"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nilay/reportgen/internal/api/response"
	"github.com/nilay/reportgen/internal/core"
	"github.com/nilay/reportgen/internal/model"
	"github.com/nilay/reportgen/internal/upload"
)

// Multipart field names for a report batch.
const (
	fieldMain = "main"
	fieldRef1 = "ref-1"
	fieldRef2 = "ref-2"
)

type Report struct {
	saver       *upload.Saver
	jobs        *core.JobService
	timings     *core.ScheduleTimingService
	defaultTime string
	maxBytes    int64

	now func() time.Time
}

func NewReport(saver *upload.Saver, jobs *core.JobService, timings *core.ScheduleTimingService, defaultTime string, maxBytes int64) *Report {
	return &Report{
		saver:       saver,
		jobs:        jobs,
		timings:     timings,
		defaultTime: defaultTime,
		maxBytes:    maxBytes,
		now:         time.Now,
	}
}

// Create accepts a multipart batch (main plus up to two reference files),
// stores it and schedules a report job for the next configured run time.
// Non-CSV batches are stored but answered without a job: only CSV input is
// processed today.
func (h *Report) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		response.WriteError(w, http.StatusBadRequest, "parse multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	mainHeader, refs, err := batchHeaders(r.MultipartForm)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	headers := append([]*multipart.FileHeader{mainHeader}, refs...)
	records, err := h.saver.SaveBatch(r.Context(), headers)
	if err != nil {
		var verr *upload.ValidationError
		if errors.As(err, &verr) {
			response.WriteError(w, http.StatusBadRequest, verr.Error())
			return
		}
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !upload.IsCSV(mainHeader) {
		response.WriteJSON(w, http.StatusOK, map[string]any{
			"message": "files stored; only csv documents are scheduled for report generation",
			"files":   len(records),
		})
		return
	}

	now := h.now()
	job, err := h.scheduleJob(r, records, now)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusAccepted, map[string]any{
		"job_uid":    job.UID,
		"execute_at": job.ExecuteAt,
	})
}

func (h *Report) scheduleJob(r *http.Request, records []model.FileRecord, now time.Time) (*model.Job, error) {
	ctx := r.Context()

	uid, err := h.jobs.GenerateUID(ctx, now)
	if err != nil {
		return nil, err
	}

	timeOfDay := h.defaultTime
	if timing, err := h.timings.GetByJobType(ctx, model.JobTypeReportGenerator); err == nil {
		timeOfDay = timing.TimeOfDay
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	executeAt, err := core.NextRunAt(timeOfDay, now)
	if err != nil {
		return nil, err
	}

	payload := model.JobPayload{Main: []int64{records[0].ID}}
	for _, rec := range records[1:] {
		payload.Reference = append(payload.Reference, rec.ID)
	}

	job := &model.Job{
		UID:          uid,
		Name:         records[0].OriginalName,
		Description:  "deferred report generation",
		Status:       model.JobStatusQueued,
		JobType:      model.JobTypeReportGenerator,
		Payload:      payload,
		ExecuteAt:    executeAt,
		ScheduleType: model.ScheduleOnce,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// batchHeaders pulls the main file and the optional references out of the
// form, enforcing one file per field.
func batchHeaders(form *multipart.Form) (*multipart.FileHeader, []*multipart.FileHeader, error) {
	mains := form.File[fieldMain]
	if len(mains) != 1 {
		return nil, nil, errors.New("exactly one main file is required")
	}

	var refs []*multipart.FileHeader
	for _, field := range []string{fieldRef1, fieldRef2} {
		switch hs := form.File[field]; len(hs) {
		case 0:
		case 1:
			refs = append(refs, hs[0])
		default:
			return nil, nil, errors.New("at most one file per reference field")
		}
	}
	return mains[0], refs, nil
}
