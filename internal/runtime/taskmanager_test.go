package runtime

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTaskManager_Start(t *testing.T) {
	tm := NewTaskManager(context.Background())

	var called atomic.Bool
	if err := tm.Start("watch", "config watcher", func(ctx context.Context) error {
		called.Store(true)
		return nil
	}); err != nil {
		t.Fatalf("Failed to start task: %v", err)
	}
	tm.Wait()

	if !called.Load() {
		t.Error("Task function was not called")
	}
	task, err := tm.GetTask("watch")
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if task.Status != TaskStatusStopped {
		t.Errorf("Expected status 'stopped', got '%s'", task.Status)
	}
}

func TestTaskManager_StartDuplicate(t *testing.T) {
	tm := NewTaskManager(context.Background())
	block := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := tm.Start("metrics", "metrics listener", block); err != nil {
		t.Fatalf("Failed to start first task: %v", err)
	}
	if err := tm.Start("metrics", "metrics listener", block); err == nil {
		t.Error("Expected error when starting duplicate task")
	}

	if err := tm.Stop("metrics"); err != nil {
		t.Fatalf("Failed to stop task: %v", err)
	}
	waitFor(t, func() bool {
		task, _ := tm.GetTask("metrics")
		return task.Status == TaskStatusCanceled
	})
	// A finished task may be started again under the same name.
	if err := tm.Start("metrics", "metrics listener", block); err != nil {
		t.Errorf("Expected restart to succeed, got %v", err)
	}
	tm.StopAll()
	tm.Wait()
}

func TestTaskManager_StopAllCancels(t *testing.T) {
	tm := NewTaskManager(context.Background())
	for _, name := range []string{"refresh", "watch", "metrics"} {
		if err := tm.Start(name, name, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}); err != nil {
			t.Fatalf("Failed to start task %s: %v", name, err)
		}
	}
	if got := len(tm.ListTasks()); got != 3 {
		t.Errorf("Expected 3 tasks, got %d", got)
	}

	if err := tm.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	stats := tm.GetStats()
	if stats.Total != 3 || stats.Canceled != 3 {
		t.Errorf("Expected 3 canceled tasks, got %+v", stats)
	}
}

func TestTaskManager_FailureAndPanic(t *testing.T) {
	tm := NewTaskManager(context.Background())
	if err := tm.Start("failing", "fails", func(context.Context) error {
		return errors.New("redis down")
	}); err != nil {
		t.Fatal(err)
	}
	if err := tm.Start("panicking", "panics", func(context.Context) error {
		panic("boom")
	}); err != nil {
		t.Fatal(err)
	}
	tm.Wait()

	stats := tm.GetStats()
	if stats.Failed != 2 {
		t.Errorf("Expected 2 failed tasks, got %+v", stats)
	}
	task, _ := tm.GetTask("failing")
	if task.Error == nil || task.Error.Error() != "redis down" {
		t.Errorf("Expected task error to be kept, got %v", task.Error)
	}
}

func TestTaskManager_StartPeriodic(t *testing.T) {
	tm := NewTaskManager(context.Background())

	var count atomic.Int32
	_, err := tm.StartPeriodic("refresh", "refresh loop", 20*time.Millisecond, func(ctx context.Context) error {
		if count.Add(1) == 2 {
			return errors.New("planning failed")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to start periodic task: %v", err)
	}
	waitFor(t, func() bool { return count.Load() >= 3 })
	if err := tm.Shutdown(time.Second); err != nil {
		t.Fatal(err)
	}

	task, _ := tm.GetTask("refresh")
	if task.Runs < 3 {
		t.Errorf("Expected at least 3 recorded runs, got %d", task.Runs)
	}
	if task.LastRun.IsZero() {
		t.Error("Expected LastRun to be set")
	}
	if task.Status != TaskStatusCanceled {
		t.Errorf("Expected status 'canceled', got '%s'", task.Status)
	}
}

func TestTaskManager_TriggerRunsEarly(t *testing.T) {
	tm := NewTaskManager(context.Background())
	runs := make(chan struct{}, 8)
	p, err := tm.StartPeriodic("refresh", "refresh loop", time.Hour, func(ctx context.Context) error {
		runs <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	<-runs // immediate first run

	if !p.Trigger() {
		t.Fatal("Expected trigger to be queued")
	}
	select {
	case <-runs:
	case <-time.After(2 * time.Second):
		t.Fatal("triggered run did not happen")
	}
	tm.StopAll()
	tm.Wait()

	if _, err := tm.StartPeriodic("bad", "zero interval", 0, func(context.Context) error { return nil }); err == nil {
		t.Error("Expected error for zero interval")
	}
}
