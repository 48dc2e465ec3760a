// Package executor consumes report tasks from the queue and runs the
// generation pipeline to a terminal job status.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/nilay/reportgen/internal/core"
	"github.com/nilay/reportgen/internal/identity"
	"github.com/nilay/reportgen/internal/metrics"
	"github.com/nilay/reportgen/internal/model"
	"github.com/nilay/reportgen/internal/queue"
	"github.com/nilay/reportgen/internal/report"
)

// reportFields is the ordered set of output columns every report carries.
// It mirrors the seeded transformation rules.
var reportFields = []int{1, 2, 3, 4, 5, 6, 7}

// TxBeginner opens a transaction on the shared pool for the final state
// transition. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Options carries the executor's tunables.
type Options struct {
	JobTimeout   time.Duration
	OutputDir    string
	JoinColumn   string
	MainIDColumn int
}

// Executor runs one report job per queue message. Handler errors are never
// surfaced back to the queue: the job row's attempt counter and the dispatch
// loop own the retry policy, not the broker.
type Executor struct {
	db   core.DB
	tx   TxBeginner
	opts Options
	log  zerolog.Logger

	identify func() (*identity.Device, error)
	now      func() time.Time
	generate func(ctx context.Context, p report.Params) (*report.Output, error)
}

func New(db core.DB, tx TxBeginner, opts Options, log zerolog.Logger) *Executor {
	return &Executor{
		db:       db,
		tx:       tx,
		opts:     opts,
		log:      log.With().Str("component", "executor").Logger(),
		identify: identity.Resolve,
		now:      time.Now,
		generate: report.Generate,
	}
}

// Mux returns the task mux binding the executor to its task types.
func (e *Executor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskTypeStandard, e.HandleStandard)
	return mux
}

// HandleStandard processes one report:standard message end to end.
func (e *Executor) HandleStandard(ctx context.Context, task *asynq.Task) error {
	var payload queue.TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		e.log.Error().Err(err).Msg("undecodable task payload, dropping")
		return nil
	}

	log := e.log.With().Int64("job_id", payload.JobID).Logger()

	jobs := core.NewJobService(e.db)
	job, err := jobs.GetByID(ctx, payload.JobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Warn().Msg("task references a missing job, dropping")
		} else {
			log.Error().Err(err).Msg("load job")
		}
		return nil
	}

	out, runErr := e.ExecuteNow(ctx, job)
	if runErr != nil {
		log.Error().Err(runErr).Str("job_uid", job.UID).Msg("report generation failed")
		return nil
	}
	log.Info().Str("job_uid", job.UID).Str("output", out.Name).Msg("report generated")
	return nil
}

// ExecuteNow runs the pipeline under the per-job timeout and commits the
// terminal status. It is shared by the queue handler and the synchronous
// run-now endpoint. The returned error is the pipeline's, not the queue's:
// by the time ExecuteNow returns, the job row is already FAILED or SUCCESS.
func (e *Executor) ExecuteNow(ctx context.Context, job *model.Job) (*report.Output, error) {
	started := e.now()
	runCtx, cancel := context.WithTimeout(ctx, e.opts.JobTimeout)
	out, runErr := e.Run(runCtx, job)
	cancel()

	status := model.JobStatusSuccess
	if runErr != nil {
		status = model.JobStatusFailed
	}

	if err := e.finalize(ctx, job.ID, status, out); err != nil {
		return nil, fmt.Errorf("record terminal state for job %s: %w", job.UID, err)
	}

	metrics.JobsExecuted.WithLabelValues(string(status)).Inc()
	metrics.JobDuration.Observe(e.now().Sub(started).Seconds())
	return out, runErr
}

// Run executes the report pipeline for a job and returns the produced
// output. It does not touch job state; callers own the status transition.
func (e *Executor) Run(ctx context.Context, job *model.Job) (*report.Output, error) {
	if len(job.Payload.Main) != 1 {
		return nil, fmt.Errorf("job %s has %d main files, want 1", job.UID, len(job.Payload.Main))
	}
	if len(job.Payload.Reference) > 2 {
		return nil, fmt.Errorf("job %s has %d reference files, want at most 2", job.UID, len(job.Payload.Reference))
	}

	files := core.NewFileService(e.db)
	mainRec, err := files.GetByID(ctx, job.Payload.Main[0])
	if err != nil {
		return nil, fmt.Errorf("resolve main file: %w", err)
	}

	var refPaths [2]string
	for i, id := range job.Payload.Reference {
		rec, err := files.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve reference file %d: %w", i+1, err)
		}
		refPaths[i] = rec.Path
	}

	rules, err := core.NewRuleService(e.db).RulesForFields(ctx, reportFields)
	if err != nil {
		return nil, fmt.Errorf("load transformation rules: %w", err)
	}

	return e.generate(ctx, report.Params{
		MainPath:     mainRec.Path,
		Ref1Path:     refPaths[0],
		Ref2Path:     refPaths[1],
		JoinColumn:   e.opts.JoinColumn,
		MainIDColumn: e.opts.MainIDColumn,
		Fields:       reportFields,
		Rules:        rules,
		OutputDir:    e.opts.OutputDir,
	})
}

// finalize commits the terminal status, the attempt increment and, on
// success, the output file record in one serializable transaction.
func (e *Executor) finalize(ctx context.Context, jobID int64, status model.JobStatus, out *report.Output) error {
	mac := "unknown"
	if device, err := e.identify(); err == nil {
		mac = device.MAC
	}
	now := e.now()

	tx, err := e.tx.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin finalize tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := core.NewJobService(tx).Finalize(ctx, jobID, status, now, mac); err != nil {
		return err
	}
	if status == model.JobStatusSuccess && out != nil {
		rec := &model.FileRecord{
			StoredName:   out.Name,
			OriginalName: out.Name,
			ContentType:  out.ContentType,
			Path:         out.Path,
			Category:     model.FileCategoryOutput,
			CreatedAt:    now,
		}
		if err := core.NewFileService(tx).Create(ctx, rec); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit finalize tx: %w", err)
	}
	return nil
}
