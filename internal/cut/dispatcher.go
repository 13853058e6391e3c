package cut

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Defaults for the Dispatcher.
const (
	DefaultMaxConcurrent = 10
	DefaultPollInterval  = 50 * time.Millisecond
)

// ErrProcessFailed is wrapped by errors of processes that exited unsuccessfully.
var ErrProcessFailed = errors.New("cut: process failed")

// ProcessError reports the job whose process could not be started or failed.
type ProcessError struct {
	Job Job
	Err error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("cut %s: %v", e.Job.Song, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// Process is a started cut.
type Process interface {
	// Exited reports, without blocking, whether the process has finished and
	// if so the error it finished with.
	Exited() (bool, error)
}

// Launcher starts the process of a job without waiting for it.
type Launcher interface {
	Launch(ctx context.Context, job Job) (Process, error)
}

// Dispatcher runs jobs through a Launcher with at most maxConcurrent
// processes alive at a time.
type Dispatcher struct {
	launcher      Launcher
	logger        *slog.Logger
	maxConcurrent int
	pollInterval  time.Duration
	onFinished    func(Job)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMaxConcurrent sets the process limit. Values below 1 are ignored.
func WithMaxConcurrent(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxConcurrent = n
		}
	}
}

// WithPollInterval sets how often running processes are polled.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

// WithOnFinished registers a callback invoked from the dispatch loop for every
// job whose process exited successfully.
func WithOnFinished(fn func(Job)) Option {
	return func(d *Dispatcher) {
		d.onFinished = fn
	}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(launcher Launcher, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		launcher:      launcher,
		logger:        logger,
		maxConcurrent: DefaultMaxConcurrent,
		pollInterval:  DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type running struct {
	job  Job
	proc Process
}

// Run starts jobs in submission order and returns the jobs that finished, in
// completion order.
//
// The first process that cannot be started or exits unsuccessfully aborts the
// batch with a *ProcessError: no further job is started and processes still
// running are left alone. Cancelling ctx stops the loop with ctx.Err();
// processes started with ctx are torn down by their launcher.
func (d *Dispatcher) Run(ctx context.Context, jobs []Job) ([]Job, error) {
	queue := append([]Job(nil), jobs...)
	active := make([]running, 0, d.maxConcurrent)
	finished := make([]Job, 0, len(jobs))

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for len(queue) > 0 || len(active) > 0 {
		if err := ctx.Err(); err != nil {
			return finished, err
		}

		for len(active) < d.maxConcurrent && len(queue) > 0 {
			job := queue[0]
			queue = queue[1:]

			d.logger.Info("cutting song",
				slog.String("song", job.Song.String()),
				slog.Float64("start", job.Start.Seconds),
				slog.Float64("duration", job.Duration()),
				slog.String("output", job.OutputPath),
			)
			proc, err := d.launcher.Launch(ctx, job)
			if err != nil {
				return finished, &ProcessError{Job: job, Err: err}
			}
			active = append(active, running{job: job, proc: proc})
		}

		still := active[:0]
		for _, r := range active {
			exited, err := r.proc.Exited()
			switch {
			case !exited:
				still = append(still, r)
			case err != nil:
				d.logger.Error("cut failed",
					slog.String("song", r.job.Song.String()),
					slog.String("error", err.Error()),
				)
				return finished, &ProcessError{Job: r.job, Err: err}
			default:
				d.logger.Info("finished song",
					slog.String("song", r.job.Song.String()),
					slog.String("output", r.job.OutputPath),
				)
				finished = append(finished, r.job)
				if d.onFinished != nil {
					d.onFinished(r.job)
				}
			}
		}
		active = still

		if len(queue) > 0 && len(active) < d.maxConcurrent {
			continue
		}
		if len(active) == 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return finished, ctx.Err()
		case <-ticker.C:
		}
	}
	return finished, nil
}
