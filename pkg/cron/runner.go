package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	ErrInvalidTask   = errors.New("invalid task")
	ErrDuplicateTask = errors.New("task already registered")
	ErrRunnerStarted = errors.New("runner already started")
	ErrUnknownTask   = errors.New("unknown task")
)

// Task is a function repeated at a fixed interval.
type Task struct {
	Name     string
	Interval time.Duration
	// AllowOverlap lets a new run start while the previous one is still
	// going. Without it a late run is skipped.
	AllowOverlap bool
	// RunOnStart also runs the task once when the runner starts.
	RunOnStart bool
	Run        func(ctx context.Context)
}

// Runner owns the repeating tasks of the process. Tasks are registered
// during startup, before Start.
type Runner struct {
	cron   *cron.Cron
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	entries map[string]cron.EntryID
	tasks   map[string]Task
	started bool
}

// NewRunner creates a runner with seconds precision.
func NewRunner(logger *slog.Logger) *Runner {
	logger = logger.With("component", "cron")
	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{logger}
	return &Runner{
		cron:    cron.New(cron.WithSeconds(), cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		log:     logger,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]cron.EntryID),
		tasks:   make(map[string]Task),
	}
}

// Register schedules t as an "@every" entry.
func (r *Runner) Register(t Task) error {
	if t.Name == "" || t.Run == nil || t.Interval <= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidTask, t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return ErrRunnerStarted
	}
	if _, ok := r.entries[t.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateTask, t.Name)
	}

	var job cron.Job = cron.FuncJob(func() { t.Run(r.ctx) })
	if !t.AllowOverlap {
		job = cron.NewChain(cron.SkipIfStillRunning(cronLogger{r.log})).Then(job)
	}

	schedule := "@every " + t.Interval.String()
	id, err := r.cron.AddJob(schedule, job)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", t.Name, err)
	}
	r.entries[t.Name] = id
	r.tasks[t.Name] = t
	r.log.Debug("registered task", "task", t.Name, "schedule", schedule)
	return nil
}

// Start begins running registered tasks.
func (r *Runner) Start() {
	r.mu.Lock()
	r.started = true
	var initial []Task
	for _, t := range r.tasks {
		if t.RunOnStart {
			initial = append(initial, t)
		}
	}
	r.mu.Unlock()

	for _, t := range initial {
		go t.Run(r.ctx)
	}
	r.cron.Start()
	r.log.Info("task runner started", "tasks", len(r.tasks))
}

// Stop halts scheduling, cancels the task context and waits for running
// jobs until ctx expires.
func (r *Runner) Stop(ctx context.Context) {
	done := r.cron.Stop()
	r.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
		r.log.Warn("timed out waiting for running tasks")
	}
	r.log.Info("task runner stopped")
}

// NextRun returns the next scheduled run of the named task.
func (r *Runner) NextRun(name string) (time.Time, error) {
	r.mu.RLock()
	id, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}
	return r.cron.Entry(id).Next, nil
}

// Tasks returns the names of the registered tasks, sorted.
func (r *Runner) Tasks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
