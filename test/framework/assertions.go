package framework

import (
	"github.com/fuzzhive/fuzzhive/pkg/apiclient"
)

// TestingT is the subset of *testing.T the assertion helpers use.
type TestingT interface {
	Helper()
	Fatalf(format string, args ...any)
}

// Assertions provides test assertion helpers for scans driven through the
// Public API.
type Assertions struct {
	t TestingT
}

// NewAssertions creates a new Assertions instance
func NewAssertions(t TestingT) *Assertions {
	return &Assertions{t: t}
}

// TaskExists asserts that a scan exists.
func (a *Assertions) TaskExists(c *apiclient.Client, taskID string) {
	a.t.Helper()

	task, err := c.GetTask(taskID)
	if err != nil {
		a.t.Fatalf("task %s does not exist: %v", taskID, err)
	}
	if task == nil {
		a.t.Fatalf("task %s is nil", taskID)
	}
}

// TaskStatus asserts that a scan has reached the expected status.
func (a *Assertions) TaskStatus(c *apiclient.Client, taskID, expected string) {
	a.t.Helper()

	task, err := c.GetTask(taskID)
	if err != nil {
		a.t.Fatalf("failed to get task %s: %v", taskID, err)
	}
	if string(task.Status) != expected {
		a.t.Fatalf("task %s has status %s, expected %s", taskID, task.Status, expected)
	}
}

// WorkerRegistered asserts that a worker ID is present in the registry.
func (a *Assertions) WorkerRegistered(c *apiclient.Client, workerID string) {
	a.t.Helper()

	workers, err := c.ListWorkers()
	if err != nil {
		a.t.Fatalf("failed to list workers: %v", err)
	}
	for _, rec := range workers {
		if rec.WorkerID == workerID {
			return
		}
	}
	a.t.Fatalf("worker %s is not registered", workerID)
}

// FindingsExist asserts that at least one finding exists for a task.
func (a *Assertions) FindingsExist(c *apiclient.Client, taskID string) {
	a.t.Helper()

	findings, err := c.ListFindings(taskID, "", nil)
	if err != nil {
		a.t.Fatalf("failed to list findings for task %s: %v", taskID, err)
	}
	if len(findings) == 0 {
		a.t.Fatalf("task %s has no findings", taskID)
	}
}

// NoFindingWithSeverity asserts that no finding for a task has the given severity.
func (a *Assertions) NoFindingWithSeverity(c *apiclient.Client, taskID, severity string) {
	a.t.Helper()

	findings, err := c.ListFindings(taskID, severity, nil)
	if err != nil {
		a.t.Fatalf("failed to list findings for task %s: %v", taskID, err)
	}
	if len(findings) != 0 {
		a.t.Fatalf("task %s has %d findings with severity %s, expected none", taskID, len(findings), severity)
	}
}
