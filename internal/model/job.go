package model

import "time"

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusRunning    JobStatus = "RUNNING"
	JobStatusSuccess    JobStatus = "SUCCESS"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusNoInstance JobStatus = "NO_INSTANCE"
)

// JobType selects the queue route a job is dispatched on.
type JobType string

const (
	JobTypeReportGenerator JobType = "REPORT_GENERATOR"
	// JobTypeMailer has a queue binding but no producer yet.
	JobTypeMailer JobType = "MAILER"
)

// ScheduleType describes how a job's execute-at time recurs.
// Only ONCE is produced today; the rest are reserved.
type ScheduleType string

const (
	ScheduleOnce        ScheduleType = "ONCE"
	ScheduleEveryday    ScheduleType = "EVERYDAY"
	ScheduleWeekdays    ScheduleType = "WEEKDAYS"
	ScheduleCustomDates ScheduleType = "CUSTOM_DATES"
)

// JobPayload references the input files a job operates on, grouped by role.
// The main list always holds exactly one file id; reference holds zero to two.
type JobPayload struct {
	Main      []int64 `json:"main"`
	Reference []int64 `json:"reference,omitempty"`
}

// Job is a persisted unit of deferred work describing which files to
// join/transform and when. Jobs are never deleted; terminal rows are kept
// for audit and retry accounting.
type Job struct {
	ID           int64        `json:"id"`
	UID          string       `json:"uid"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Status       JobStatus    `json:"status"`
	JobType      JobType      `json:"job_type"`
	Attempts     int          `json:"attempts"`
	Payload      JobPayload   `json:"payload"`
	ExecuteAt    time.Time    `json:"execute_at"`
	ScheduleType ScheduleType `json:"schedule_type"`
	LastRanAt    *time.Time   `json:"last_ran_at,omitempty"`
	LastRanBy    *string      `json:"last_ran_by,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
