package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/nilay/reportgen/internal/identity"
	"github.com/nilay/reportgen/internal/metrics"
	"github.com/nilay/reportgen/internal/model"
	"github.com/nilay/reportgen/internal/queue"
)

// JobStore is the slice of the job service the dispatcher needs.
type JobStore interface {
	List(ctx context.Context) ([]model.Job, error)
	Claim(ctx context.Context, id int64, now time.Time, ranBy string) (bool, error)
}

// Registry resolves this process's instance row from its device identity.
type Registry interface {
	GetOrCreate(ctx context.Context, mac, ip string, now time.Time) (*model.Instance, error)
}

// Publisher enqueues a claimed job id on a resolved route.
type Publisher interface {
	Publish(ctx context.Context, route queue.Route, jobID int64) error
}

// Options configures the dispatch cadence and retry policy.
type Options struct {
	Interval   time.Duration
	Warmup     time.Duration
	RetryLimit int
	RetryDelay time.Duration
}

// Dispatcher scans the job table on a ticker and pushes every due, claimable
// job onto its queue. At most one scan runs at a time per process; a tick
// that fires while the previous scan is still working is skipped.
type Dispatcher struct {
	jobs      JobStore
	registry  Registry
	publisher Publisher
	opts      Options
	log       zerolog.Logger

	// identify is swappable in tests; it defaults to identity.Resolve.
	identify func() (*identity.Device, error)
	now      func() time.Time

	busy atomic.Bool
}

func NewDispatcher(jobs JobStore, registry Registry, publisher Publisher, opts Options, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		jobs:      jobs,
		registry:  registry,
		publisher: publisher,
		opts:      opts,
		log:       log.With().Str("component", "dispatcher").Logger(),
		identify:  identity.Resolve,
		now:       time.Now,
	}
}

// Run blocks until ctx is canceled. The first scan happens one warm-up
// period after start, then every interval.
func (d *Dispatcher) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.opts.Warmup):
	}

	ticker := time.NewTicker(d.opts.Interval)
	defer ticker.Stop()

	d.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick runs one dispatch scan unless one is already in flight.
func (d *Dispatcher) Tick(ctx context.Context) {
	if !d.busy.CompareAndSwap(false, true) {
		metrics.DispatchTicks.WithLabelValues("skipped").Inc()
		d.log.Debug().Msg("previous dispatch scan still running, tick skipped")
		return
	}
	defer d.busy.Store(false)
	metrics.DispatchTicks.WithLabelValues("run").Inc()

	now := d.now()

	device, err := d.identify()
	if err != nil {
		d.log.Warn().Err(err).Msg("device identity unavailable, leaving jobs queued")
		return
	}
	instance, err := d.registry.GetOrCreate(ctx, device.MAC, device.IP, now)
	if err != nil {
		d.log.Error().Err(err).Msg("register instance")
		return
	}

	jobs, err := d.jobs.List(ctx)
	if err != nil {
		d.log.Error().Err(err).Msg("list jobs")
		return
	}

	for i := range jobs {
		job := &jobs[i]
		if !dispatchable(job.Status) {
			continue
		}
		if !Retryable(job.Attempts, d.opts.RetryLimit) {
			continue
		}
		if !Due(job, d.opts.RetryDelay, now) {
			continue
		}
		d.dispatchOne(ctx, job, instance.MAC, now)
	}
}

// dispatchOne routes, claims and publishes a single job. Failures are logged
// and counted but never abort the rest of the scan.
func (d *Dispatcher) dispatchOne(ctx context.Context, job *model.Job, mac string, now time.Time) {
	log := d.log.With().Int64("job_id", job.ID).Str("job_uid", job.UID).Logger()

	// Resolve the route before touching job state so an unroutable job
	// stays QUEUED instead of being stranded in RUNNING.
	route, err := queue.Resolve(job.JobType)
	if err != nil {
		if errors.Is(err, queue.ErrNoRoute) {
			metrics.JobsDispatched.WithLabelValues("no_route").Inc()
			log.Warn().Str("job_type", string(job.JobType)).Msg("job type has no queue route")
			return
		}
		metrics.JobsDispatched.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("resolve route")
		return
	}

	claimed, err := d.jobs.Claim(ctx, job.ID, now, mac)
	if err != nil {
		metrics.JobsDispatched.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("claim job")
		return
	}
	if !claimed {
		metrics.JobsDispatched.WithLabelValues("lost_claim").Inc()
		log.Debug().Msg("job claimed elsewhere")
		return
	}

	if err := d.publisher.Publish(ctx, route, job.ID); err != nil {
		metrics.JobsDispatched.WithLabelValues("error").Inc()
		log.Error().Err(err).Str("queue", route.Queue).Msg("publish job")
		return
	}

	metrics.JobsDispatched.WithLabelValues("published").Inc()
	log.Info().Str("queue", route.Queue).Str("task_type", route.TaskType).Msg("job dispatched")
}
