// Package storage provides durable, relational persistence for tasks,
// findings, the worker registry snapshot, and scan configs.
package storage

import "github.com/fuzzhive/fuzzhive/pkg/types"

// FindingFilter narrows a get_findings query.
type FindingFilter struct {
	TaskID  string // empty means "any task"
	Checked *bool  // nil means "any"
}

// Store is the durable persistence contract the Task Manager and Public
// API read and write through. The sole writer of
// Tasks and Findings is the Store itself.
type Store interface {
	SaveTask(task *types.Task) error
	GetTask(id string) (*types.Task, error)
	ListTasks(status types.TaskStatus) ([]*types.Task, error)
	UpdateTaskProgress(id string, progress int) error
	CompleteTask(id string, findingsCount int) error

	SaveFinding(finding *types.Finding) error
	GetFindings(filter FindingFilter) ([]*types.Finding, error)
	MarkFindingChecked(id string, checked bool) error

	UpsertWorker(record *types.WorkerRecord) error
	GetWorker(id string) (*types.WorkerRecord, error)
	ListWorkers() ([]*types.WorkerRecord, error)
	IncrementWorkerTasksCompleted(id string) error

	SaveScanConfig(cfg *types.ScanConfig) error
	GetScanConfig(name string) (*types.ScanConfig, error)
	ListScanConfigs() ([]*types.ScanConfig, error)
	DeleteScanConfig(name string) error

	Close() error
}
