// Package runtime runs the daemon's long-lived tasks: the periodic refresh
// loop, the config watcher and the metrics listener.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Task describes a background task.
type Task struct {
	Name        string
	Description string
	StartTime   time.Time
	Status      TaskStatus
	Error       error
	// Runs, LastRun and LastError are kept for periodic tasks.
	Runs      int
	LastRun   time.Time
	LastError error
	cancel    context.CancelFunc
}

// TaskStatus represents the status of a task
type TaskStatus string

const (
	TaskStatusRunning  TaskStatus = "running"
	TaskStatusStopped  TaskStatus = "stopped"
	TaskStatusFailed   TaskStatus = "failed"
	TaskStatusCanceled TaskStatus = "canceled"
)

// TaskFunc is a function that runs as a background task
type TaskFunc func(ctx context.Context) error

// TaskManager owns background tasks and their lifecycle. Stopping the
// manager cancels every task context.
type TaskManager struct {
	tasks  map[string]*Task
	mu     sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewTaskManager(ctx context.Context) *TaskManager {
	ctx, cancel := context.WithCancel(ctx)
	return &TaskManager{
		tasks:  make(map[string]*Task),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start runs fn on its own goroutine under a child of the manager's
// context. A name may be reused once its previous task has returned.
func (tm *TaskManager) Start(name, description string, fn TaskFunc) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if t, ok := tm.tasks[name]; ok && t.Status == TaskStatusRunning {
		return fmt.Errorf("task %s already running", name)
	}
	ctx, cancel := context.WithCancel(tm.ctx)
	task := &Task{
		Name:        name,
		Description: description,
		StartTime:   time.Now(),
		Status:      TaskStatusRunning,
		cancel:      cancel,
	}
	tm.tasks[name] = task

	tm.wg.Add(1)
	go func() {
		defer tm.wg.Done()
		defer cancel()
		log.WithFields(log.Fields{"task": name, "description": description}).Info("task started")
		tm.finish(ctx, task, safeRun(ctx, fn))
	}()
	return nil
}

// safeRun converts a panic in fn into an error.
func safeRun(ctx context.Context, fn TaskFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

func (tm *TaskManager) finish(ctx context.Context, task *Task, err error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	logger := log.WithField("task", task.Name)
	switch {
	case err == nil:
		task.Status = TaskStatusStopped
		logger.Info("task stopped")
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		task.Status = TaskStatusCanceled
		logger.Debug("task canceled")
	default:
		task.Status = TaskStatusFailed
		task.Error = err
		logger.WithError(err).Error("task failed")
	}
}

// Stop cancels one running task.
func (tm *TaskManager) Stop(name string) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	task, exists := tm.tasks[name]
	if !exists {
		return fmt.Errorf("task %s not found", name)
	}
	if task.Status != TaskStatusRunning {
		return fmt.Errorf("task %s is not running", name)
	}
	task.cancel()
	return nil
}

// StopAll cancels every task.
func (tm *TaskManager) StopAll() {
	tm.cancel()
}

// Wait blocks until every task has returned.
func (tm *TaskManager) Wait() {
	tm.wg.Wait()
}

// Shutdown cancels every task and waits up to timeout for them to return.
func (tm *TaskManager) Shutdown(timeout time.Duration) error {
	tm.StopAll()
	done := make(chan struct{})
	go func() {
		tm.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("tasks still running after %s", timeout)
	}
}

// GetTask returns a copy of the named task.
func (tm *TaskManager) GetTask(name string) (*Task, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	task, exists := tm.tasks[name]
	if !exists {
		return nil, fmt.Errorf("task %s not found", name)
	}
	c := snapshot(task)
	return &c, nil
}

// ListTasks returns copies of all tasks.
func (tm *TaskManager) ListTasks() []*Task {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	tasks := make([]*Task, 0, len(tm.tasks))
	for _, task := range tm.tasks {
		c := snapshot(task)
		tasks = append(tasks, &c)
	}
	return tasks
}

func snapshot(t *Task) Task {
	return Task{
		Name:        t.Name,
		Description: t.Description,
		StartTime:   t.StartTime,
		Status:      t.Status,
		Error:       t.Error,
		Runs:        t.Runs,
		LastRun:     t.LastRun,
		LastError:   t.LastError,
	}
}

// GetStats counts tasks by status.
func (tm *TaskManager) GetStats() TaskStats {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	stats := TaskStats{
		Total: len(tm.tasks),
	}
	for _, task := range tm.tasks {
		switch task.Status {
		case TaskStatusRunning:
			stats.Running++
		case TaskStatusStopped:
			stats.Stopped++
		case TaskStatusFailed:
			stats.Failed++
		case TaskStatusCanceled:
			stats.Canceled++
		}
	}
	return stats
}

// TaskStats contains statistics about tasks
type TaskStats struct {
	Total    int `json:"total"`
	Running  int `json:"running"`
	Stopped  int `json:"stopped"`
	Failed   int `json:"failed"`
	Canceled int `json:"canceled"`
}

// Periodic is the handle of a task started with StartPeriodic.
type Periodic struct {
	trigger chan struct{}
}

// Trigger asks for a run as soon as the current one, if any, finishes.
// Requests made while one is already pending are coalesced; it reports
// whether this call queued a new one.
func (p *Periodic) Trigger() bool {
	select {
	case p.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// StartPeriodic runs fn at once and then every interval, or earlier when
// triggered. Runs never overlap. A failed run is logged and recorded; the
// schedule continues.
func (tm *TaskManager) StartPeriodic(name, description string, interval time.Duration, fn TaskFunc) (*Periodic, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("task %s: interval must be positive", name)
	}
	p := &Periodic{trigger: make(chan struct{}, 1)}
	err := tm.Start(name, description, func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		tm.runOnce(ctx, name, fn)
		for {
			select {
			case <-ticker.C:
			case <-p.trigger:
				ticker.Reset(interval)
			case <-ctx.Done():
				return ctx.Err()
			}
			tm.runOnce(ctx, name, fn)
		}
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (tm *TaskManager) runOnce(ctx context.Context, name string, fn TaskFunc) {
	if ctx.Err() != nil {
		return
	}
	err := fn(ctx)
	if err != nil && ctx.Err() == nil {
		log.WithError(err).WithField("task", name).Warn("periodic task run failed")
	}
	tm.mu.Lock()
	if t := tm.tasks[name]; t != nil {
		t.Runs++
		t.LastRun = time.Now()
		t.LastError = err
	}
	tm.mu.Unlock()
}
