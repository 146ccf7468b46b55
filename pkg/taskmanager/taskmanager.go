// Package taskmanager owns task creation, the broker-wide result fan-in
// loop, progress accounting, and worker thread-count adjustment. Its
// Active-Task record is an in-memory map guarded by a mutex: CreateTask
// inserts an entry from the caller's goroutine, and the fan-in loop
// updates and removes entries.
package taskmanager

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fuzzhive/fuzzhive/pkg/apierrors"
	"github.com/fuzzhive/fuzzhive/pkg/broker"
	"github.com/fuzzhive/fuzzhive/pkg/classifier"
	"github.com/fuzzhive/fuzzhive/pkg/log"
	"github.com/fuzzhive/fuzzhive/pkg/metrics"
	"github.com/fuzzhive/fuzzhive/pkg/storage"
	"github.com/fuzzhive/fuzzhive/pkg/types"
)

// fanInPollInterval is how long the result loop blocks on the broker
// before checking stopCh again.
const fanInPollInterval = time.Second

// activeTask is the Active-Task in-memory record.
type activeTask struct {
	resultsReceived int
	totalWorkers    int
	findingsCount   int
}

// WordlistResolver answers whether a wordlist name is registered, and
// its resolved path.
type WordlistResolver interface {
	Resolve(name string) (path string, ok bool)
}

// Manager implements task creation and the result fan-in loop.
type Manager struct {
	store  storage.Store
	broker *broker.Broker
	words  WordlistResolver

	mu     sync.Mutex
	active map[string]*activeTask

	stopCh chan struct{}
}

// New constructs a Manager. Call Run in its own goroutine to start the
// fan-in loop.
func New(store storage.Store, b *broker.Broker, words WordlistResolver) *Manager {
	return &Manager{
		store:  store,
		broker: b,
		words:  words,
		active: make(map[string]*activeTask),
		stopCh: make(chan struct{}),
	}
}

// CreateTask validates the wordlist, persists the task, fans a task
// message out to every worker, and records the Active-Task entry. A
// worker id repeated in worker_ids is sent to twice and counted twice.
func (m *Manager) CreateTask(ctx context.Context, target, wordlistName string, workerIDs []string, opts types.Options) (*types.Task, error) {
	timer := metrics.NewTimer()
	path, ok := m.words.Resolve(wordlistName)
	if !ok {
		return nil, apierrors.New(apierrors.UnknownWordlist, "unknown wordlist %q", wordlistName)
	}
	if len(workerIDs) == 0 {
		return nil, apierrors.New(apierrors.NoActiveWorkers, "create_task requires at least one worker id")
	}

	task := &types.Task{
		ID:           uuid.New().String(),
		Target:       target,
		WordlistName: wordlistName,
		WordlistPath: path,
		Options:      opts.WithDefaults(),
		WorkerIDs:    workerIDs,
		Status:       types.TaskPending,
		CreatedAt:    time.Now().UTC(),
	}
	if err := m.store.SaveTask(task); err != nil {
		return nil, err
	}

	for _, workerID := range workerIDs {
		msg := types.TaskMessage{
			TaskID:       task.ID,
			Target:       task.Target,
			WordlistName: task.WordlistName,
			WordlistPath: task.WordlistPath,
			Options:      task.Options,
			WorkerIDs:    task.WorkerIDs,
			WorkerID:     workerID,
			CreatedAt:    task.CreatedAt,
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			return nil, apierrors.Wrap(apierrors.InvalidInput, err)
		}
		if err := m.broker.PushTask(ctx, workerID, payload); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	m.active[task.ID] = &activeTask{totalWorkers: len(workerIDs)}
	m.mu.Unlock()

	metrics.TasksCreated.Inc()
	timer.ObserveDuration(metrics.TaskFanOutDuration)

	return task, nil
}

// UpdateWorkerThreads validates n and pushes an update_threads control
// message. No acknowledgment is awaited.
func (m *Manager) UpdateWorkerThreads(ctx context.Context, workerID string, n int) error {
	if n < 1 || n > 100 {
		return apierrors.New(apierrors.InvalidInput, "threads must be in [1,100], got %d", n)
	}
	msg := types.ControlMessage{Type: types.ControlUpdateThreads, Threads: n, Timestamp: time.Now().UTC()}
	payload, err := json.Marshal(msg)
	if err != nil {
		return apierrors.Wrap(apierrors.InvalidInput, err)
	}
	return m.broker.PushControl(ctx, workerID, payload)
}

// Run starts the result fan-in loop. It blocks until Stop is called.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		payload, err := m.broker.BlockingPopResult(ctx, fanInPollInterval)
		if err != nil {
			log.Errorf("fan-in loop: broker error", err)
			continue
		}
		if payload == nil {
			continue
		}
		if err := m.handleResult(payload); err != nil {
			log.Errorf("fan-in loop: handling result", err)
		}
	}
}

// Stop signals Run to exit after its current iteration.
func (m *Manager) Stop() { close(m.stopCh) }

func (m *Manager) handleResult(payload []byte) error {
	var msg types.ResultMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return apierrors.Wrap(apierrors.MalformedResult, err)
	}

	taskLog := log.WithTaskID(msg.TaskID)

	m.mu.Lock()
	at, ok := m.active[msg.TaskID]
	m.mu.Unlock()
	if !ok {
		// Either already completed (duplicate delivery) or the process
		// restarted and lost its in-memory record; the Store remains
		// ground truth either way, so there is nothing further to do.
		taskLog.Warn().Msg("result for task with no active-task record, ignoring")
		return nil
	}

	findingsAdded := 0
	switch msg.Status {
	case types.ResultCompleted:
		if msg.Results != nil {
			for _, rec := range msg.Results.Results {
				finding := classifier.Classify(msg.TaskID, rec)
				if finding == nil {
					metrics.RecordsDropped.Inc()
					continue
				}
				finding.CreatedAt = time.Now().UTC()
				if err := m.store.SaveFinding(finding); err != nil {
					return err
				}
				metrics.FindingsBySeverity.WithLabelValues(string(finding.Severity)).Inc()
				findingsAdded++
			}
		}
	case types.ResultFailed:
		taskLog.Error().Msg("worker reported failure: " + msg.Error)
	}

	m.mu.Lock()
	at.resultsReceived++
	at.findingsCount += findingsAdded
	received, total, findingsCount := at.resultsReceived, at.totalWorkers, at.findingsCount
	done := received >= total
	if done {
		delete(m.active, msg.TaskID)
	}
	m.mu.Unlock()

	progress := 0
	if total > 0 {
		progress = 100 * received / total
	}
	if err := m.store.UpdateTaskProgress(msg.TaskID, progress); err != nil {
		return err
	}

	if done {
		if err := m.store.CompleteTask(msg.TaskID, findingsCount); err != nil {
			return err
		}
		metrics.TasksCompleted.WithLabelValues(string(types.TaskCompleted)).Inc()
	}
	return nil
}
