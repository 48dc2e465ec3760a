// Package scheduler decides which persisted jobs are eligible to run and
// dispatches them onto the task queues on a fixed cadence.
package scheduler

import (
	"time"

	"github.com/nilay/reportgen/internal/model"
)

// Retryable reports whether a job still has dispatch attempts left.
func Retryable(attempts, limit int) bool {
	return attempts < limit
}

// Due reports whether a job's time has come. Both the retry-delay gate and
// the execute-at gate are compared at whole-second UTC granularity, with
// equality counting as due.
func Due(job *model.Job, retryDelay time.Duration, now time.Time) bool {
	now = now.UTC().Truncate(time.Second)

	if job.LastRanAt != nil {
		next := job.LastRanAt.UTC().Truncate(time.Second).Add(retryDelay)
		if now.Before(next) {
			return false
		}
	}
	return !now.Before(job.ExecuteAt.UTC().Truncate(time.Second))
}

// dispatchable reports whether a job's current status permits dispatch at
// all. RUNNING, SUCCESS and NO_INSTANCE rows are never picked up again.
func dispatchable(status model.JobStatus) bool {
	switch status {
	case model.JobStatusRunning, model.JobStatusSuccess, model.JobStatusNoInstance:
		return false
	}
	return true
}
