// Package scheduler fires the daily batch jobs on a single cron trigger.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/park285/cheese-challenge/internal/metrics"
	"github.com/park285/cheese-challenge/internal/obslog"
)

const DefaultSpec = "0 0 * * *"

// ErrBusy is returned by RunNow while another run is in progress.
var ErrBusy = errors.New("scheduler: a run is already in progress")

// Job is one step of a run. Jobs run sequentially in registration order.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

type Scheduler struct {
	cron *cron.Cron
	spec string
	jobs []Job

	running sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// New parses spec as a standard five-field cron expression evaluated in loc.
func New(spec string, loc *time.Location, jobs ...Job) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	if loc == nil {
		loc = time.Local
	}
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cron: c, spec: spec, jobs: jobs, ctx: ctx, cancel: cancel}
	if _, err := c.AddFunc(spec, s.fire); err != nil {
		cancel()
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins firing on the schedule. It does not block.
func (s *Scheduler) Start() {
	s.cron.Start()
	obslog.L().Info("scheduler_started", zap.String("spec", s.spec), zap.Int("jobs", len(s.jobs)))
}

// Next reports the next trigger time, zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) fire() {
	if err := s.RunNow(s.ctx); err != nil && !errors.Is(err, ErrBusy) {
		obslog.L().Warn("scheduler_run_failed", zap.Error(err))
	}
}

// RunNow runs every job once. A failing job is logged and the next job still
// runs; the returned error joins all job failures.
func (s *Scheduler) RunNow(ctx context.Context) error {
	if !s.running.TryLock() {
		obslog.L().Warn("scheduler_run_skipped")
		return ErrBusy
	}
	defer s.running.Unlock()

	var errs []error
	for _, j := range s.jobs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		start := time.Now()
		err := j.Run(ctx)
		d := time.Since(start)
		metrics.RecordJobRun(j.Name, err == nil, d)
		if err != nil {
			obslog.L().Error("scheduler_job_failed", zap.String("job", j.Name), zap.Duration("took", d), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", j.Name, err))
			continue
		}
		obslog.L().Info("scheduler_job_done", zap.String("job", j.Name), zap.Duration("took", d))
	}
	return errors.Join(errs...)
}

// Stop halts the trigger and waits for an in-flight run. When ctx expires
// first the run is cancelled and ctx's error returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.cancel()
		obslog.L().Info("scheduler_stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done.Done()
		return ctx.Err()
	}
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	obslog.L().Sugar().Debugw("cron_"+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	obslog.L().Sugar().Errorw("cron_"+msg, append(keysAndValues, "error", err)...)
}
