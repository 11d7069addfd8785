package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	taskRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_task_runs_total",
		Help: "Total scheduled task runs by outcome",
	}, []string{"task", "status"})

	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scheduler_task_duration_seconds",
		Help:    "Time taken by scheduled task runs",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"task"})

	taskPanicsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_task_panics_total",
		Help: "Total panics recovered from scheduled tasks",
	}, []string{"task"})
)

// DefaultTimeout bounds a task run when the definition leaves Timeout zero
const DefaultTimeout = 5 * time.Minute

// ClockTime is a UTC wall-clock time of day for daily tasks
type ClockTime struct {
	Hour   int
	Minute int
}

// At builds the daily cadence for a task definition
func At(hour, minute int) *ClockTime {
	return &ClockTime{Hour: hour, Minute: minute}
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// NextAfter returns the first instant strictly after now matching the
// clock time, in UTC.
func (c ClockTime) NextAfter(now time.Time) time.Time {
	now = now.UTC()
	at := time.Date(now.Year(), now.Month(), now.Day(), c.Hour, c.Minute, 0, 0, time.UTC)
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

// Task is one scheduled job definition: a cadence (exactly one of Every
// or At), a row bound and a per-run timeout.
type Task struct {
	// Name identifies the task in logs and metrics
	Name string
	// Every runs the task at a fixed interval
	Every time.Duration
	// At runs the task daily at a UTC clock time
	At *ClockTime
	// Bound caps the rows a run may handle; passed through to Run
	Bound int32
	// Timeout bounds each run; DefaultTimeout when zero
	Timeout time.Duration
	// Run does the work. now is the fire time in UTC.
	Run func(ctx context.Context, now time.Time, bound int32) error
}

func (t Task) cadence() string {
	if t.At != nil {
		return "daily " + t.At.String()
	}
	return "every " + t.Every.String()
}

// Scheduler drives registered tasks over a bounded worker pool. One
// goroutine owns each task's cadence, so a task never overlaps itself;
// the pool bounds how many distinct tasks run at once. Interval tasks
// get a jittered first run so replicas do not fire in lockstep.
type Scheduler struct {
	logger  *zap.Logger
	sem     chan struct{}
	stop    chan struct{}
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	tasks   []Task
	started bool
	stopped bool
}

// New creates a scheduler running at most maxConcurrent tasks at once
func New(logger *zap.Logger, maxConcurrent int) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger:  logger,
		sem:     make(chan struct{}, maxConcurrent),
		stop:    make(chan struct{}),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Register adds a task definition. All tasks must be registered before
// Start.
func (s *Scheduler) Register(task Task) error {
	if task.Name == "" {
		return fmt.Errorf("scheduler: task name is required")
	}
	if task.Run == nil {
		return fmt.Errorf("scheduler: task %s has no run function", task.Name)
	}
	if (task.Every > 0) == (task.At != nil) {
		return fmt.Errorf("scheduler: task %s must set exactly one of Every or At", task.Name)
	}
	if task.Timeout <= 0 {
		task.Timeout = DefaultTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler: cannot register %s after start", task.Name)
	}
	s.tasks = append(s.tasks, task)
	return nil
}

// Start launches one cadence goroutine per registered task
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: already started")
	}
	s.started = true
	tasks := make([]Task, len(s.tasks))
	copy(tasks, s.tasks)
	s.mu.Unlock()

	for _, task := range tasks {
		s.wg.Add(1)
		go s.loop(task)
	}
	s.logger.Info("scheduler started", zap.Int("tasks", len(tasks)))
	return nil
}

// Stop halts cadences and waits for in-flight runs until ctx expires,
// then cancels them.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stop)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		s.logger.Warn("scheduler stop timed out, cancelling in-flight tasks")
		return ctx.Err()
	}
}

func (s *Scheduler) loop(task Task) {
	defer s.wg.Done()

	delay := s.initialDelay(task, time.Now().UTC())
	s.logger.Info("task scheduled",
		zap.String("task", task.Name),
		zap.String("cadence", task.cadence()),
		zap.Int32("bound", task.Bound),
		zap.Duration("first_run_in", delay),
	)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-timer.C:
			now := time.Now().UTC()
			s.runOnce(task, now)
			timer.Reset(s.nextDelay(task, time.Now().UTC()))
		}
	}
}

// initialDelay spreads interval tasks across their first interval;
// daily tasks wait for their clock time.
func (s *Scheduler) initialDelay(task Task, now time.Time) time.Duration {
	if task.At != nil {
		return task.At.NextAfter(now).Sub(now)
	}
	return time.Duration(rand.Int63n(int64(task.Every)))
}

func (s *Scheduler) nextDelay(task Task, now time.Time) time.Duration {
	if task.At != nil {
		return task.At.NextAfter(now).Sub(now)
	}
	return task.Every
}

// runOnce claims a pool slot and executes the task with its timeout
func (s *Scheduler) runOnce(task Task, now time.Time) {
	select {
	case s.sem <- struct{}{}:
	case <-s.stop:
		return
	}
	defer func() { <-s.sem }()

	start := time.Now()
	ctx, cancel := context.WithTimeout(s.baseCtx, task.Timeout)
	defer cancel()

	err := s.invoke(ctx, task, now)
	elapsed := time.Since(start)
	taskDuration.WithLabelValues(task.Name).Observe(elapsed.Seconds())

	if err != nil {
		taskRunsTotal.WithLabelValues(task.Name, "error").Inc()
		s.logger.Error("scheduled task failed",
			zap.String("task", task.Name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return
	}
	taskRunsTotal.WithLabelValues(task.Name, "success").Inc()
	s.logger.Info("scheduled task finished",
		zap.String("task", task.Name),
		zap.Duration("elapsed", elapsed),
	)
}

// invoke runs the task, converting a panic into an error so one bad
// run cannot take the cadence goroutine down with it.
func (s *Scheduler) invoke(ctx context.Context, task Task, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			taskPanicsTotal.WithLabelValues(task.Name).Inc()
			s.logger.Error("scheduled task panicked",
				zap.String("task", task.Name),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()
	return task.Run(ctx, now, task.Bound)
}
