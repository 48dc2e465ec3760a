package core

import (
	"context"
	"fmt"
	"time"

	"github.com/nilay/reportgen/internal/model"
)

type ScheduleTimingService struct {
	db DB
}

func NewScheduleTimingService(db DB) *ScheduleTimingService {
	return &ScheduleTimingService{db: db}
}

func (s *ScheduleTimingService) GetByJobType(ctx context.Context, jobType model.JobType) (*model.ScheduleTiming, error) {
	var t model.ScheduleTiming
	err := s.db.QueryRow(ctx,
		`SELECT id, job_type, time_of_day, updated_at FROM job_schedule_timings WHERE job_type = $1`,
		jobType,
	).Scan(&t.ID, &t.JobType, &t.TimeOfDay, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get schedule timing for %s: %w", jobType, err)
	}
	return &t, nil
}

func (s *ScheduleTimingService) Update(ctx context.Context, jobType model.JobType, timeOfDay string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO job_schedule_timings (job_type, time_of_day, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (job_type) DO UPDATE SET time_of_day = EXCLUDED.time_of_day, updated_at = now()`,
		jobType, timeOfDay,
	)
	if err != nil {
		return fmt.Errorf("update schedule timing for %s: %w", jobType, err)
	}
	return nil
}

// NextRunAt computes the next instant the given UTC time of day occurs at or
// after now. A timing of "18:00" asked at 17:59 UTC schedules today; at 18:01
// it schedules tomorrow.
func NextRunAt(timeOfDay string, now time.Time) (time.Time, error) {
	tod, err := time.Parse("15:04", timeOfDay)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time of day %q: %w", timeOfDay, err)
	}

	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), tod.Hour(), tod.Minute(), 0, 0, time.UTC)
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}
