package cron

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/angelmondragon/grocerybid-backend/pkg/logger"
	"github.com/angelmondragon/grocerybid-backend/pkg/metrics"
)

const defaultInterval = 15 * time.Minute

// Job is one housekeeping task run on every scheduler tick.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger   *logger.Logger
	Jobs     []Job
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// JobTimeout bounds a single job; it defaults to the interval.
	JobTimeout time.Duration
}

// Service runs every job in order once per interval on whichever worker holds
// the lock. A failing or panicking job does not stop the jobs after it.
type Service struct {
	logg       *logger.Logger
	jobs       []Job
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
	now        func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Logger == nil {
		return nil, errors.New("logger required")
	}
	if p.Lock == nil {
		return nil, errors.New("lock required")
	}
	seen := map[string]bool{}
	jobs := make([]Job, 0, len(p.Jobs))
	for _, job := range p.Jobs {
		if job == nil {
			continue
		}
		name := job.Name()
		if name == "" {
			return nil, errors.New("cron job has no name")
		}
		if seen[name] {
			return nil, fmt.Errorf("cron job %q registered twice", name)
		}
		seen[name] = true
		jobs = append(jobs, job)
	}
	s := &Service{
		logg:       p.Logger,
		jobs:       jobs,
		lock:       p.Lock,
		metrics:    p.Metrics,
		interval:   p.Interval,
		jobTimeout: p.JobTimeout,
		now:        time.Now,
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.jobTimeout <= 0 {
		s.jobTimeout = s.interval
	}
	return s, nil
}

// Run ticks immediately and then every interval until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// cycle is what one tick did.
type cycle struct {
	result string
	failed []string
}

func (s *Service) tick(ctx context.Context) cycle {
	c := s.runCycle(ctx)
	s.metrics.Cycle(c.result)
	if len(c.failed) > 0 {
		s.logg.Warn(s.logg.WithField(ctx, "failed_jobs", c.failed), "cron cycle finished with failures")
	}
	return c
}

func (s *Service) runCycle(ctx context.Context) cycle {
	unlock, held, err := s.lock.TryLock(ctx)
	if err != nil {
		s.logg.Error(ctx, "cron lock unavailable", err)
		return cycle{result: metrics.CycleLockError}
	}
	if !held {
		s.logg.Debug(ctx, "cron lock held elsewhere, skipping tick")
		return cycle{result: metrics.CycleSkipped}
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "cron lock release failed", err)
		}
	}()

	c := cycle{result: metrics.CycleRan}
	for _, job := range s.jobs {
		if ctx.Err() != nil {
			break
		}
		if err := s.runJob(ctx, job); err != nil {
			c.failed = append(c.failed, job.Name())
		}
	}
	return c
}

func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	jobCtx, cancel := context.WithTimeout(s.logg.WithField(ctx, "job", job.Name()), s.jobTimeout)
	defer cancel()

	started := s.now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
		took := s.now().Sub(started)
		s.metrics.JobFinished(job.Name(), took, s.now(), err)
		logCtx := s.logg.WithField(jobCtx, "duration_ms", took.Milliseconds())
		if err != nil {
			s.logg.Error(logCtx, "cron job failed", err)
			return
		}
		s.logg.Info(logCtx, "cron job done")
	}()
	return job.Run(jobCtx)
}
