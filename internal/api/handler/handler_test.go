package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nilay/reportgen/internal/core"
	"github.com/nilay/reportgen/internal/model"
	"github.com/nilay/reportgen/internal/report"
	"github.com/nilay/reportgen/internal/upload"
)

type mockDB struct {
	mock.Mock
}

func (m *mockDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDB) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Rows), args.Error(1)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

type mockRow struct {
	scanFunc func(dest ...any) error
}

func (m *mockRow) Scan(dest ...any) error {
	return m.scanFunc(dest...)
}

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) ExecuteNow(ctx context.Context, job *model.Job) (*report.Output, error) {
	args := m.Called(ctx, job)
	out, _ := args.Get(0).(*report.Output)
	return out, args.Error(1)
}

func sqlContains(fragment string) any {
	return mock.MatchedBy(func(sql string) bool { return strings.Contains(sql, fragment) })
}

func noRow(err error) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error { return err }}
}

func jobRow(job model.Job) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error {
		payload, _ := json.Marshal(job.Payload)
		*dest[0].(*int64) = job.ID
		*dest[1].(*string) = job.UID
		*dest[2].(*string) = job.Name
		*dest[3].(*string) = job.Description
		*dest[4].(*model.JobStatus) = job.Status
		*dest[5].(*model.JobType) = job.JobType
		*dest[6].(*int) = job.Attempts
		*dest[7].(*[]byte) = payload
		*dest[8].(*time.Time) = job.ExecuteAt
		*dest[9].(*model.ScheduleType) = job.ScheduleType
		*dest[10].(**time.Time) = job.LastRanAt
		*dest[11].(**string) = job.LastRanBy
		*dest[12].(*time.Time) = job.CreatedAt
		*dest[13].(*time.Time) = job.UpdatedAt
		return nil
	}}
}

// ---------- Job handler ----------

func jobRouter(db *mockDB, runner Runner) http.Handler {
	h := NewJob(core.NewJobService(db), runner)
	r := chi.NewRouter()
	r.Get("/jobs", h.List)
	r.Get("/jobs/{uid}", h.Get)
	r.Post("/jobs/{uid}/run", h.Run)
	return r
}

func TestJobGet(t *testing.T) {
	db := new(mockDB)
	job := model.Job{ID: 7, UID: "J260828abcd", Status: model.JobStatusQueued}
	db.On("QueryRow", mock.Anything, sqlContains("WHERE uid"), mock.Anything).Return(jobRow(job))

	rec := httptest.NewRecorder()
	jobRouter(db, new(mockRunner)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/J260828abcd", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "J260828abcd")
}

func TestJobGetNotFound(t *testing.T) {
	db := new(mockDB)
	db.On("QueryRow", mock.Anything, sqlContains("WHERE uid"), mock.Anything).Return(noRow(pgx.ErrNoRows))

	rec := httptest.NewRecorder()
	jobRouter(db, new(mockRunner)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobRun(t *testing.T) {
	db := new(mockDB)
	runner := new(mockRunner)
	job := model.Job{ID: 7, UID: "J260828abcd", Status: model.JobStatusQueued}
	db.On("QueryRow", mock.Anything, sqlContains("WHERE uid"), mock.Anything).Return(jobRow(job))
	runner.On("ExecuteNow", mock.Anything, mock.MatchedBy(func(j *model.Job) bool { return j.UID == "J260828abcd" })).
		Return(&report.Output{Name: "abcd260828.csv"}, nil)

	rec := httptest.NewRecorder()
	jobRouter(db, runner).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/J260828abcd/run", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "abcd260828.csv")
	runner.AssertExpectations(t)
}

func TestJobRunPipelineFailure(t *testing.T) {
	db := new(mockDB)
	runner := new(mockRunner)
	db.On("QueryRow", mock.Anything, sqlContains("WHERE uid"), mock.Anything).
		Return(jobRow(model.Job{ID: 7, UID: "J260828abcd"}))
	runner.On("ExecuteNow", mock.Anything, mock.Anything).Return(nil, errors.New("reference file has no column"))

	rec := httptest.NewRecorder()
	jobRouter(db, runner).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/J260828abcd/run", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// ---------- Schedule timing handler ----------

func timingRouter(db *mockDB) http.Handler {
	h := NewScheduleTiming(core.NewScheduleTimingService(db), "18:00")
	r := chi.NewRouter()
	r.Get("/schedule-timings/{jobType}", h.Get)
	r.Put("/schedule-timings/{jobType}", h.Update)
	return r
}

func TestScheduleTimingGetFallsBackToDefault(t *testing.T) {
	db := new(mockDB)
	db.On("QueryRow", mock.Anything, sqlContains("job_schedule_timings"), mock.Anything).
		Return(noRow(pgx.ErrNoRows))

	rec := httptest.NewRecorder()
	timingRouter(db).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/schedule-timings/REPORT_GENERATOR", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "18:00")
}

func TestScheduleTimingUpdate(t *testing.T) {
	db := new(mockDB)
	db.On("Exec", mock.Anything, sqlContains("ON CONFLICT"), mock.MatchedBy(func(args []any) bool {
		return args[0] == model.JobTypeReportGenerator && args[1] == "07:30"
	})).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	body := strings.NewReader(`{"time_of_day":"07:30"}`)
	rec := httptest.NewRecorder()
	timingRouter(db).ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/schedule-timings/REPORT_GENERATOR", body))

	assert.Equal(t, http.StatusOK, rec.Code)
	db.AssertExpectations(t)
}

func TestScheduleTimingUpdateRejectsBadTime(t *testing.T) {
	db := new(mockDB)

	body := strings.NewReader(`{"time_of_day":"25:99"}`)
	rec := httptest.NewRecorder()
	timingRouter(db).ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/schedule-timings/REPORT_GENERATOR", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	db.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
}

// ---------- File handler ----------

func TestFileDownload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abcd260828.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))

	db := new(mockDB)
	db.On("QueryRow", mock.Anything, sqlContains("FROM files"), mock.Anything).
		Return(&mockRow{scanFunc: func(dest ...any) error {
			*dest[0].(*int64) = 21
			*dest[1].(*string) = "abcd260828.csv"
			*dest[2].(*string) = "report.csv"
			*dest[3].(*string) = "text/csv"
			*dest[4].(*string) = path
			*dest[5].(*model.FileCategory) = model.FileCategoryOutput
			*dest[6].(*time.Time) = time.Now()
			return nil
		}})

	h := NewFile(core.NewFileService(db))
	r := chi.NewRouter()
	r.Get("/files/{id}/download", h.Download)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/21/download", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "report.csv")
	assert.Equal(t, "a,b\n1,2\n", rec.Body.String())
}

func TestFileDownloadNotFound(t *testing.T) {
	db := new(mockDB)
	db.On("QueryRow", mock.Anything, sqlContains("FROM files"), mock.Anything).Return(noRow(pgx.ErrNoRows))

	h := NewFile(core.NewFileService(db))
	r := chi.NewRouter()
	r.Get("/files/{id}/download", h.Download)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/99/download", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ---------- Report handler ----------

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for field, name := range files {
		part, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write([]byte("a,b\n1,2\n"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func reportRouter(t *testing.T, db *mockDB) http.Handler {
	saver := upload.NewSaver(core.NewFileService(db), t.TempDir(), 1<<20, zerolog.Nop())
	h := NewReport(saver, core.NewJobService(db), core.NewScheduleTimingService(db), "18:00", 1<<20)
	r := chi.NewRouter()
	r.Post("/reports", h.Create)
	return r
}

func TestReportCreateSchedulesJob(t *testing.T) {
	db := new(mockDB)

	var fileID int64
	db.On("QueryRow", mock.Anything, sqlContains("INSERT INTO files"), mock.Anything).
		Return(&mockRow{scanFunc: func(dest ...any) error {
			fileID++
			*dest[0].(*int64) = fileID
			return nil
		}})
	db.On("QueryRow", mock.Anything, sqlContains("SELECT EXISTS"), mock.Anything).
		Return(&mockRow{scanFunc: func(dest ...any) error {
			*dest[0].(*bool) = false
			return nil
		}})
	db.On("QueryRow", mock.Anything, sqlContains("job_schedule_timings"), mock.Anything).
		Return(noRow(pgx.ErrNoRows))
	db.On("QueryRow", mock.Anything, sqlContains("INSERT INTO jobs"), mock.Anything).
		Return(&mockRow{scanFunc: func(dest ...any) error {
			*dest[0].(*int64) = 7
			return nil
		}})

	body, contentType := multipartBody(t, map[string]string{"main": "main.csv", "ref-1": "ref.csv"})
	req := httptest.NewRequest(http.MethodPost, "/reports", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	reportRouter(t, db).ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp struct {
		JobUID    string    `json:"job_uid"`
		ExecuteAt time.Time `json:"execute_at"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.JobUID, "J"))
	assert.Len(t, resp.JobUID, 11)
	assert.False(t, resp.ExecuteAt.Before(time.Now().Add(-time.Minute)))
}

func TestReportCreateNonCSVStoredWithoutJob(t *testing.T) {
	db := new(mockDB)

	db.On("QueryRow", mock.Anything, sqlContains("INSERT INTO files"), mock.Anything).
		Return(&mockRow{scanFunc: func(dest ...any) error {
			*dest[0].(*int64) = 1
			return nil
		}})

	body, contentType := multipartBody(t, map[string]string{"main": "main.json"})
	req := httptest.NewRequest(http.MethodPost, "/reports", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	reportRouter(t, db).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "only csv")
	db.AssertNotCalled(t, "QueryRow", mock.Anything, sqlContains("INSERT INTO jobs"), mock.Anything)
}

func TestReportCreateRejectsBadExtension(t *testing.T) {
	db := new(mockDB)

	body, contentType := multipartBody(t, map[string]string{"main": "main.exe"})
	req := httptest.NewRequest(http.MethodPost, "/reports", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	reportRouter(t, db).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported extension")
}

func TestReportCreateRequiresMainFile(t *testing.T) {
	db := new(mockDB)

	body, contentType := multipartBody(t, map[string]string{"ref-1": "ref.csv"})
	req := httptest.NewRequest(http.MethodPost, "/reports", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	reportRouter(t, db).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "main file")
}
