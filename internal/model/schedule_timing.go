package model

import "time"

// ScheduleTiming holds the next-run time of day for a job type. There is at
// most one row per job type; when none exists the engine falls back to a
// fixed default.
type ScheduleTiming struct {
	ID        int64     `json:"id"`
	JobType   JobType   `json:"job_type"`
	TimeOfDay string    `json:"time_of_day"` // "HH:MM", UTC
	UpdatedAt time.Time `json:"updated_at"`
}
