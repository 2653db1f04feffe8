package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/godhahn/data-project/internal/extract"
	"github.com/godhahn/data-project/internal/runner"
)

// Trigger starts one extract run.
type Trigger interface {
	Run(ctx context.Context) (extract.Summary, error)
}

// Scheduler periodically runs the extract, either on a cron expression or at a fixed interval.
type Scheduler struct {
	scheduler *gocron.Scheduler
	trigger   Trigger
	cronExpr  string
	interval  time.Duration
	log       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Scheduler. A non-empty cronExpr takes precedence over interval.
func New(trigger Trigger, cronExpr string, interval time.Duration, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		trigger:   trigger,
		cronExpr:  cronExpr,
		interval:  interval,
		log:       log,
	}
}

// Start schedules the job and starts the underlying scheduler. Runs are cancelled
// when ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	var err error
	if s.cronExpr != "" {
		_, err = s.scheduler.Cron(s.cronExpr).Do(s.runOnce)
		s.log.Info("scheduler: extract scheduled", "cron", s.cronExpr)
	} else {
		interval := s.interval
		if interval <= 0 {
			interval = 24 * time.Hour
		}
		_, err = s.scheduler.Every(interval).Do(s.runOnce)
		s.log.Info("scheduler: extract scheduled", "interval", interval)
	}
	if err != nil {
		s.cancel()
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) runOnce() {
	s.log.Info("scheduler: running extract job")

	sum, err := s.trigger.Run(s.ctx)
	if err != nil {
		if errors.Is(err, runner.ErrRunInProgress) {
			s.log.Info("scheduler: previous run still in progress, skipping")
			return
		}
		s.log.Error("scheduler: run failed", "error", err)
		return
	}
	s.log.Info("scheduler: completed extract job", "run_id", sum.RunID, "status", sum.Status)
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
