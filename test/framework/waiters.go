package framework

import (
	"context"
	"fmt"
	"time"

	"github.com/fuzzhive/fuzzhive/pkg/apiclient"
)

// Waiter provides utilities for waiting on conditions with timeouts
type Waiter struct {
	timeout  time.Duration
	interval time.Duration
}

// NewWaiter creates a new Waiter with the given timeout and polling interval
func NewWaiter(timeout, interval time.Duration) *Waiter {
	return &Waiter{
		timeout:  timeout,
		interval: interval,
	}
}

// DefaultWaiter returns a waiter with sensible defaults (30s timeout, 1s interval)
func DefaultWaiter() *Waiter {
	return NewWaiter(30*time.Second, 1*time.Second)
}

// WaitFor waits for a condition to become true
func (w *Waiter) WaitFor(ctx context.Context, condition func() bool, description string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	if condition() {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for: %s (timeout: %v)", description, w.timeout)
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}

// WaitForTaskStatus waits for a scan to reach one of the given terminal statuses.
func (w *Waiter) WaitForTaskStatus(ctx context.Context, c *apiclient.Client, taskID string, statuses ...string) error {
	return w.WaitFor(ctx, func() bool {
		task, err := c.GetTask(taskID)
		if err != nil {
			return false
		}
		for _, s := range statuses {
			if string(task.Status) == s {
				return true
			}
		}
		return false
	}, fmt.Sprintf("task %s to reach status in %v", taskID, statuses))
}

// WaitForWorkerRegistered waits for a worker ID to appear in the registry.
func (w *Waiter) WaitForWorkerRegistered(ctx context.Context, c *apiclient.Client, workerID string) error {
	return w.WaitFor(ctx, func() bool {
		workers, err := c.ListWorkers()
		if err != nil {
			return false
		}
		for _, rec := range workers {
			if rec.WorkerID == workerID {
				return true
			}
		}
		return false
	}, fmt.Sprintf("worker %s to register", workerID))
}

// WaitForFindings waits until at least one finding exists for a task.
func (w *Waiter) WaitForFindings(ctx context.Context, c *apiclient.Client, taskID string) error {
	return w.WaitFor(ctx, func() bool {
		findings, err := c.ListFindings(taskID, "", nil)
		if err != nil {
			return false
		}
		return len(findings) > 0
	}, fmt.Sprintf("findings for task %s", taskID))
}
