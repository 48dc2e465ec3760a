package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nilay/reportgen/internal/model"
)

// ErrUIDExhausted is returned when a unique job uid could not be generated
// within the collision retry budget.
var ErrUIDExhausted = errors.New("job uid generation exhausted after 100 attempts")

const uidAttempts = 100

type JobService struct {
	db DB
}

func NewJobService(db DB) *JobService {
	return &JobService{db: db}
}

func (s *JobService) Create(ctx context.Context, job *model.Job) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("encode job payload: %w", err)
	}

	err = s.db.QueryRow(ctx,
		`INSERT INTO jobs (uid, name, description, status, job_type, attempts, payload, execute_at, schedule_type, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		job.UID, job.Name, job.Description, job.Status, job.JobType, job.Attempts,
		payload, job.ExecuteAt, job.ScheduleType, job.CreatedAt, job.UpdatedAt,
	).Scan(&job.ID)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

const jobColumns = `id, uid, name, description, status, job_type, attempts, payload, execute_at, schedule_type, last_ran_at, last_ran_by, created_at, updated_at`

func (s *JobService) GetByID(ctx context.Context, id int64) (*model.Job, error) {
	job, err := scanJob(s.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}
	return job, nil
}

func (s *JobService) GetByUID(ctx context.Context, uid string) (*model.Job, error) {
	job, err := scanJob(s.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE uid = $1`, uid))
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", uid, err)
	}
	return job, nil
}

// List returns all jobs ordered by id. The dispatch loop scans the full set
// each tick; job volume is bounded by upload traffic, not by row count.
func (s *JobService) List(ctx context.Context) ([]model.Job, error) {
	rows, err := s.db.Query(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// Claim transitions a job to RUNNING and stamps ownership, but only if no
// other tick has claimed it since it was loaded. The conditional update is
// what guarantees a single winner across concurrent dispatch ticks.
func (s *JobService) Claim(ctx context.Context, id int64, now time.Time, ranBy string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE jobs SET status = $1, last_ran_at = $2, last_ran_by = $3, updated_at = now()
		 WHERE id = $4 AND status NOT IN ($5, $6, $7)`,
		model.JobStatusRunning, now, ranBy, id,
		model.JobStatusRunning, model.JobStatusSuccess, model.JobStatusNoInstance,
	)
	if err != nil {
		return false, fmt.Errorf("claim job %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Finalize records a terminal state for one execution attempt.
func (s *JobService) Finalize(ctx context.Context, id int64, status model.JobStatus, now time.Time, ranBy string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE jobs SET status = $1, attempts = attempts + 1, last_ran_at = $2, last_ran_by = $3, updated_at = now()
		 WHERE id = $4`,
		status, now, ranBy, id,
	)
	if err != nil {
		return fmt.Errorf("finalize job %d: %w", id, err)
	}
	return nil
}

// GenerateUID produces a unique human-readable job uid of the form
// J<yymmdd><4 hex chars>, retrying on collision. After 100 collisions it
// fails with ErrUIDExhausted rather than looping forever.
func (s *JobService) GenerateUID(ctx context.Context, now time.Time) (string, error) {
	prefix := "J" + now.Format("060102")

	for i := 0; i < uidAttempts; i++ {
		suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
		uid := prefix + suffix

		var exists bool
		err := s.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM jobs WHERE uid = $1)`, uid,
		).Scan(&exists)
		if err != nil {
			return "", fmt.Errorf("check job uid: %w", err)
		}
		if !exists {
			return uid, nil
		}
	}

	return "", ErrUIDExhausted
}

func scanJob(row interface{ Scan(dest ...any) error }) (*model.Job, error) {
	var (
		j       model.Job
		payload []byte
	)
	err := row.Scan(&j.ID, &j.UID, &j.Name, &j.Description, &j.Status, &j.JobType,
		&j.Attempts, &payload, &j.ExecuteAt, &j.ScheduleType, &j.LastRanAt,
		&j.LastRanBy, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &j.Payload); err != nil {
		return nil, fmt.Errorf("decode job payload: %w", err)
	}
	return &j, nil
}
