package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/nilay/reportgen/internal/api/request"
	"github.com/nilay/reportgen/internal/api/response"
	"github.com/nilay/reportgen/internal/core"
	"github.com/nilay/reportgen/internal/model"
)

type ScheduleTiming struct {
	svc         *core.ScheduleTimingService
	defaultTime string
}

func NewScheduleTiming(svc *core.ScheduleTimingService, defaultTime string) *ScheduleTiming {
	return &ScheduleTiming{svc: svc, defaultTime: defaultTime}
}

// Get returns the configured run time for a job type. An absent row answers
// with the engine default instead of 404, matching what the scheduler does.
func (h *ScheduleTiming) Get(w http.ResponseWriter, r *http.Request) {
	jobType := model.JobType(chi.URLParam(r, "jobType"))

	timing, err := h.svc.GetByJobType(r.Context(), jobType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.WriteJSON(w, http.StatusOK, map[string]string{
				"job_type":    string(jobType),
				"time_of_day": h.defaultTime,
			})
			return
		}
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusOK, timing)
}

func (h *ScheduleTiming) Update(w http.ResponseWriter, r *http.Request) {
	jobType := model.JobType(chi.URLParam(r, "jobType"))

	var req struct {
		TimeOfDay string `json:"time_of_day" validate:"required,timeofday"`
	}
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Update(r.Context(), jobType, req.TimeOfDay); err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]string{
		"job_type":    string(jobType),
		"time_of_day": req.TimeOfDay,
	})
}
