package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TaskPayload is the message body carried on every report task.
type TaskPayload struct {
	JobID int64 `json:"job_id"`
}

// Publisher enqueues claimed jobs. It is safe for concurrent use.
type Publisher struct {
	client *asynq.Client
}

// NewPublisher connects a publisher to the Redis instance behind redisURL.
func NewPublisher(redisURL string) (*Publisher, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Publisher{client: asynq.NewClient(opt)}, nil
}

// Publish enqueues the job id on the given route. Delivery is at-most-once
// from the queue's point of view; re-runs are driven by the dispatch loop's
// own attempt counter, never by queue-level retries.
func (p *Publisher) Publish(ctx context.Context, route Route, jobID int64) error {
	body, err := json.Marshal(TaskPayload{JobID: jobID})
	if err != nil {
		return fmt.Errorf("encode task payload: %w", err)
	}
	task := asynq.NewTask(route.TaskType, body, asynq.Queue(route.Queue))
	if _, err := p.client.EnqueueContext(ctx, task, asynq.MaxRetry(0)); err != nil {
		return fmt.Errorf("enqueue %s: %w", route.TaskType, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.client.Close()
}

// NewServer builds the worker-side asynq server consuming both report queues.
func NewServer(redisURL string, concurrency int) (*asynq.Server, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueStandard: 2,
			QueueMailer:   1,
		},
	})
	return srv, nil
}
