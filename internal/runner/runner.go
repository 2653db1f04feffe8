// Package runner triggers extract runs, one at a time, and records their outcome.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/godhahn/data-project/internal/extract"
	"github.com/godhahn/data-project/internal/history"
)

var (
	// ErrRunInProgress is returned when a run is triggered while another is in flight.
	ErrRunInProgress = errors.New("a run is already in progress")
)

// Job executes one extract.
type Job interface {
	Run(ctx context.Context) extract.Summary
}

// Recorder receives finished runs and can push them to a metrics gateway.
type Recorder interface {
	ObserveRun(sum extract.Summary)
	Push(ctx context.Context, url string) error
}

// Options configures a Runner. Recorder and PushgatewayURL are optional.
type Options struct {
	History        history.Repository
	Recorder       Recorder
	PushgatewayURL string
	PushTimeout    time.Duration
	Logger         *slog.Logger
}

// Runner serializes runs of a Job.
type Runner struct {
	job         Job
	history     history.Repository
	recorder    Recorder
	pushURL     string
	pushTimeout time.Duration
	log         *slog.Logger

	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates a Runner.
func New(job Job, opts Options) *Runner {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	timeout := opts.PushTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Runner{
		job:         job,
		history:     opts.History,
		recorder:    opts.Recorder,
		pushURL:     opts.PushgatewayURL,
		pushTimeout: timeout,
		log:         log,
	}
}

// Running reports whether a run is in flight.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// Run executes the job synchronously and returns its summary.
func (r *Runner) Run(ctx context.Context) (extract.Summary, error) {
	if !r.running.CompareAndSwap(false, true) {
		return extract.Summary{}, ErrRunInProgress
	}
	defer r.running.Store(false)

	return r.execute(ctx), nil
}

// Start executes the job in the background. ctx bounds the run, not the call.
func (r *Runner) Start(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.running.Store(false)
		r.execute(ctx)
	}()
	return nil
}

// Wait blocks until background runs started with Start have finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) execute(ctx context.Context) extract.Summary {
	sum := r.job.Run(ctx)
	log := r.log.With("run_id", sum.RunID, "status", sum.Status)

	// bookkeeping outlives a cancelled run
	bg := context.WithoutCancel(ctx)

	if r.history != nil {
		if err := r.history.Save(bg, sum); err != nil {
			log.Error("failed to save run summary", "error", err)
		}
	}

	if r.recorder != nil {
		r.recorder.ObserveRun(sum)
		if r.pushURL != "" {
			pushCtx, cancel := context.WithTimeout(bg, r.pushTimeout)
			if err := r.recorder.Push(pushCtx, r.pushURL); err != nil {
				log.Warn("failed to push metrics", "error", err)
			}
			cancel()
		}
	}

	log.Info("run recorded",
		"weather_calls", sum.WeatherCalls,
		"weather_records", sum.WeatherRecords,
		"duration", sum.Duration())
	return sum
}
