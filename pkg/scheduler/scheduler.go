package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/fadedpez/spinz/internal/logging"
)

// Task represents a scheduled task. A run is cancelled once it has taken Interval.
type Task struct {
	Name     string
	Interval time.Duration
	Fn       func(context.Context) error

	runs     int
	failures int
}

// TaskStatus reports how often a task has run
type TaskStatus struct {
	Name     string
	Runs     int
	Failures int
}

// Scheduler manages scheduled tasks
type Scheduler struct {
	tasks   []*Task
	running bool
	mutex   sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *logging.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default
	}
	return &Scheduler{
		tasks:   make([]*Task, 0),
		running: false,
		logger:  logger.With("component", "scheduler"),
	}
}

// AddTask adds a task to the scheduler. Tasks added after Start run on the next Start.
func (s *Scheduler) AddTask(name string, interval time.Duration, fn func(context.Context) error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.tasks = append(s.tasks, &Task{
		Name:     name,
		Interval: interval,
		Fn:       fn,
	})
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.runTask(ctx, task)
	}

	s.logger.Info("Scheduler started with %d tasks", len(s.tasks))
}

// Stop stops the scheduler and waits for running tasks to return
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mutex.Unlock()

	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// runTask runs a task at the specified interval
func (s *Scheduler) runTask(ctx context.Context, task *Task) {
	defer s.wg.Done()

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	// Run the task immediately on startup
	s.logger.Debug("Running task %s immediately on startup", task.Name)
	s.execute(ctx, task)

	for {
		select {
		case <-ticker.C:
			s.logger.Debug("Running scheduled task: %s", task.Name)
			s.execute(ctx, task)
		case <-ctx.Done():
			s.logger.Debug("Task %s stopped", task.Name)
			return
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, task *Task) {
	runCtx, cancel := context.WithTimeout(ctx, task.Interval)
	defer cancel()

	err := task.Fn(runCtx)

	s.mutex.Lock()
	task.runs++
	if err != nil {
		task.failures++
	}
	s.mutex.Unlock()

	if err != nil && ctx.Err() == nil {
		s.logger.Error("Error running task %s: %v", task.Name, err)
	}
}

// Status returns the run counts of every task
func (s *Scheduler) Status() []TaskStatus {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	status := make([]TaskStatus, 0, len(s.tasks))
	for _, task := range s.tasks {
		status = append(status, TaskStatus{Name: task.Name, Runs: task.runs, Failures: task.failures})
	}
	return status
}
