// Package jobs runs the engine's periodic batches (nightly predictions and
// priority refresh, weekly assignment) on cron schedules.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// ErrRunning is returned by Run when the job is already in progress.
var ErrRunning = errors.New("job already running")

// Func is the body of a job.
type Func func(ctx context.Context) error

// Info describes a registered job.
type Info struct {
	Name     string     `json:"name"`
	Cron     string     `json:"cron"`
	LastRun  *time.Time `json:"last_run,omitempty"`
	LastErr  string     `json:"last_error,omitempty"`
	NextRun  time.Time  `json:"next_run"`
	Runs     int        `json:"runs"`
	Failures int        `json:"failures"`
	Running  bool       `json:"running"`
}

type entry struct {
	info Info
	fn   Func
	job  *gocron.Job
}

// Scheduler wraps gocron. Every run gets its own deadline and a
// non-overlapping slot: a run still in progress, whether started by a tick
// or by Run, makes the next tick or Run a no-op.
type Scheduler struct {
	cron    *gocron.Scheduler
	timeout time.Duration
	log     *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	jobs    map[string]*entry
	order   []string
	base    context.Context
	running bool
}

// New returns a Scheduler in UTC. timeout bounds each run.
func New(timeout time.Duration, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		cron:    s,
		timeout: timeout,
		log:     log.With("component", "jobs"),
		now:     time.Now,
		jobs:    make(map[string]*entry),
		base:    context.Background(),
	}
}

// Add registers fn under name on a five-field cron expression.
func (s *Scheduler) Add(name, cronExpr string, fn Func) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}
	e := &entry{info: Info{Name: name, Cron: cronExpr}, fn: fn}
	job, err := s.cron.Cron(cronExpr).Tag(name).Do(func() {
		s.mu.Lock()
		ctx := s.base
		s.mu.Unlock()
		_ = s.Run(ctx, name)
	})
	if err != nil {
		return fmt.Errorf("scheduling job %q: %w", name, err)
	}
	e.job = job
	s.jobs[name] = e
	s.order = append(s.order, name)
	return nil
}

// Run executes the named job now, with the scheduler's timeout. It returns
// ErrRunning without running fn if the job is already in progress.
func (s *Scheduler) Run(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown job %q", name)
	}
	if e.info.Running {
		s.mu.Unlock()
		s.log.Info("job skipped, previous run still in progress", "job", name)
		return fmt.Errorf("%s: %w", name, ErrRunning)
	}
	e.info.Running = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := s.now()
	s.log.Info("job started", "job", name)
	err := e.fn(ctx)

	s.mu.Lock()
	e.info.Running = false
	e.info.LastRun = &start
	e.info.Runs++
	if err != nil {
		e.info.Failures++
		e.info.LastErr = err.Error()
	} else {
		e.info.LastErr = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("job failed", "job", name, "duration", s.now().Sub(start), "error", err)
		return err
	}
	s.log.Info("job finished", "job", name, "duration", s.now().Sub(start))
	return nil
}

// Start begins firing jobs. Runs started by the scheduler derive from ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.base = ctx
	s.cron.StartAsync()
	s.running = true
	s.log.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop halts the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	// Released first: a job in progress takes mu when it finishes.
	s.cron.Stop()
	s.log.Info("scheduler stopped")
}

// List reports the registered jobs in registration order.
func (s *Scheduler) List() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Info, 0, len(s.order))
	for _, name := range s.order {
		e := s.jobs[name]
		info := e.info
		info.NextRun = e.job.NextRun()
		out = append(out, info)
	}
	return out
}
