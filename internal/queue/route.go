// Package queue publishes claimed jobs onto the Redis-backed task queues and
// builds the worker-side server that consumes them.
package queue

import (
	"errors"
	"fmt"

	"github.com/nilay/reportgen/internal/model"
)

const (
	TaskTypeStandard = "report:standard"
	TaskTypeMailer   = "report:mailer"

	QueueStandard = "standard"
	QueueMailer   = "mailer"
)

// ErrNoRoute is returned when a job type has no queue binding. Callers must
// leave the job untouched; dispatching an unroutable job would strand it.
var ErrNoRoute = errors.New("no queue route for job type")

// Route binds a job type to a task type and the queue it is enqueued on.
type Route struct {
	TaskType string
	Queue    string
}

var routes = map[model.JobType]Route{
	model.JobTypeReportGenerator: {TaskType: TaskTypeStandard, Queue: QueueStandard},
	model.JobTypeMailer:          {TaskType: TaskTypeMailer, Queue: QueueMailer},
}

// Resolve returns the route for a job type, or ErrNoRoute.
func Resolve(jobType model.JobType) (Route, error) {
	r, ok := routes[jobType]
	if !ok {
		return Route{}, fmt.Errorf("%w: %s", ErrNoRoute, jobType)
	}
	return r, nil
}
