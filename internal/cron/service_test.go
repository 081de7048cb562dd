package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/grocerybid-backend/pkg/logger"
	"github.com/angelmondragon/grocerybid-backend/pkg/metrics"
)

type scriptedLock struct {
	busy     bool
	err      error
	unlocked int
}

func (l *scriptedLock) TryLock(context.Context) (func(context.Context) error, bool, error) {
	if l.err != nil {
		return nil, false, l.err
	}
	if l.busy {
		return nil, false, nil
	}
	l.busy = true
	return func(context.Context) error {
		l.busy = false
		l.unlocked++
		return nil
	}, true, nil
}

type countingJob struct {
	name     string
	err      error
	panics   bool
	runs     int
	deadline bool
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs++
	_, j.deadline = ctx.Deadline()
	if j.panics {
		panic("nil ledger row")
	}
	return j.err
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestCycleRunsEveryJobDespiteFailures(t *testing.T) {
	ok := &countingJob{name: "recharge-expiry"}
	failing := &countingJob{name: "outbox-retention", err: errors.New("boom")}
	panicking := &countingJob{name: "exploder", panics: true}
	last := &countingJob{name: "last"}
	lock := &scriptedLock{}
	svc, err := NewService(ServiceParams{
		Logger: quietLogger(),
		Jobs:   []Job{ok, failing, nil, panicking, last},
		Lock:   lock,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	c := svc.tick(context.Background())
	if c.result != metrics.CycleRan {
		t.Fatalf("expected ran, got %s", c.result)
	}
	for _, job := range []*countingJob{ok, failing, panicking, last} {
		if job.runs != 1 {
			t.Fatalf("%s ran %d times", job.name, job.runs)
		}
		if !job.deadline {
			t.Fatalf("%s ran without a deadline", job.name)
		}
	}
	if len(c.failed) != 2 || c.failed[0] != "outbox-retention" || c.failed[1] != "exploder" {
		t.Fatalf("unexpected failures %v", c.failed)
	}
	if lock.unlocked != 1 || lock.busy {
		t.Fatalf("expected lock released once, unlocked=%d busy=%v", lock.unlocked, lock.busy)
	}
}

func TestCycleSkipsWhenAnotherWorkerHoldsLock(t *testing.T) {
	job := &countingJob{name: "recharge-expiry"}
	svc, _ := NewService(ServiceParams{Logger: quietLogger(), Jobs: []Job{job}, Lock: &scriptedLock{busy: true}})
	if c := svc.tick(context.Background()); c.result != metrics.CycleSkipped || job.runs != 0 {
		t.Fatalf("expected skip, got %s runs=%d", c.result, job.runs)
	}

	svc, _ = NewService(ServiceParams{Logger: quietLogger(), Jobs: []Job{job}, Lock: &scriptedLock{err: errors.New("redis down")}})
	if c := svc.tick(context.Background()); c.result != metrics.CycleLockError || job.runs != 0 {
		t.Fatalf("expected lock error, got %s runs=%d", c.result, job.runs)
	}
}

func TestCycleResultsReachMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc, _ := NewService(ServiceParams{
		Logger:  quietLogger(),
		Jobs:    []Job{&countingJob{name: "recharge-expiry"}},
		Lock:    &scriptedLock{},
		Metrics: metrics.NewCronJobMetrics(reg),
	})
	svc.tick(context.Background())

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	for _, want := range []string{"cron_cycles_total", "cron_job_runs_total", "cron_job_duration_seconds"} {
		if !names[want] {
			t.Fatalf("missing %s in %v", want, names)
		}
	}
}

func TestNewServiceRejectsDuplicateJobs(t *testing.T) {
	_, err := NewService(ServiceParams{
		Logger: quietLogger(),
		Jobs:   []Job{&countingJob{name: "a"}, &countingJob{name: "a"}},
		Lock:   &scriptedLock{},
	})
	if err == nil {
		t.Fatal("expected duplicate name error")
	}
	if _, err := NewService(ServiceParams{Logger: quietLogger(), Jobs: []Job{&countingJob{}}, Lock: &scriptedLock{}}); err == nil {
		t.Fatal("expected unnamed job error")
	}
	if _, err := NewService(ServiceParams{Logger: quietLogger()}); err == nil {
		t.Fatal("expected missing lock error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &countingJob{name: "recharge-expiry"}
	svc, _ := NewService(ServiceParams{Logger: quietLogger(), Jobs: []Job{job}, Lock: &scriptedLock{}, Interval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("cancelled context must not run jobs, ran %d", job.runs)
	}
}
