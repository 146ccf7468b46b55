// Package workeragent is the long-running process every worker node
// runs: a task loop, a control loop, and a health loop sharing one
// worker identity. The control and health loops follow a ticker + select
// + stopCh shape; the task loop checks stopCh between blocking pops, and
// its fuzzer invocation goes through pkg/fuzzer.
package workeragent

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fuzzhive/fuzzhive/pkg/broker"
	"github.com/fuzzhive/fuzzhive/pkg/fuzzer"
	"github.com/fuzzhive/fuzzhive/pkg/log"
	"github.com/fuzzhive/fuzzhive/pkg/types"
)

const (
	taskPopTimeout    = time.Second
	controlPollPeriod = time.Second
	healthPeriod      = 30 * time.Second
)

// Agent is a single worker's process state.
type Agent struct {
	workerID string
	hostname string
	broker   *broker.Broker
	runner   *fuzzer.Runner

	threads int32 // current thread count, adjusted by control messages
	paused  int32 // 0 = running, 1 = paused

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New constructs an Agent. threads is the initial declared thread count.
func New(workerID, hostname string, b *broker.Broker, runner *fuzzer.Runner, threads int) *Agent {
	return &Agent{
		workerID: workerID,
		hostname: hostname,
		broker:   b,
		runner:   runner,
		threads:  int32(threads),
		stopCh:   make(chan struct{}),
	}
}

// Run registers the worker and blocks running all three loops until
// Stop is called or ctx is cancelled. On return it deregisters.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.register(ctx); err != nil {
		return err
	}
	defer a.deregister(context.Background())

	done := make(chan struct{}, 3)
	go func() { a.taskLoop(ctx); done <- struct{}{} }()
	go func() { a.controlLoop(ctx); done <- struct{}{} }()
	go func() { a.healthLoop(ctx); done <- struct{}{} }()

	<-done
	<-done
	<-done
	return nil
}

// Stop signals all three loops to exit. Safe to call more than once.
func (a *Agent) Stop() { a.stopOnce.Do(func() { close(a.stopCh) }) }

func (a *Agent) register(ctx context.Context) error {
	desc := types.ActiveDescriptor{
		WorkerID:     a.workerID,
		Hostname:     a.hostname,
		Threads:      int(atomic.LoadInt32(&a.threads)),
		RegisteredAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(desc)
	if err != nil {
		return err
	}
	return a.broker.SetActive(ctx, a.workerID, payload)
}

func (a *Agent) deregister(ctx context.Context) {
	if err := a.broker.RemoveActive(ctx, a.workerID); err != nil {
		log.Errorf("deregister: broker error", err)
	}
}

// taskLoop blocks on the worker's task queue and invokes the fuzzer on
// receipt. While paused it never calls BlockingPopTask at all, so a task
// message that arrives during a pause stays on the queue for the next
// pop instead of being popped and discarded.
func (a *Agent) taskLoop(ctx context.Context) {
	workerLog := log.WithWorkerID(a.workerID)
	for {
		select {
		case <-a.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if atomic.LoadInt32(&a.paused) == 1 {
			select {
			case <-a.stopCh:
				return
			case <-ctx.Done():
				return
			case <-time.After(taskPopTimeout):
			}
			continue
		}

		payload, err := a.broker.BlockingPopTask(ctx, a.workerID, taskPopTimeout)
		if err != nil {
			workerLog.Error().Msg("task loop: broker error")
			continue
		}
		if payload == nil {
			continue
		}

		var msg types.TaskMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			workerLog.Error().Msg("task loop: malformed task message")
			continue
		}
		a.execute(ctx, msg)
	}
}

func (a *Agent) execute(ctx context.Context, msg types.TaskMessage) {
	taskLog := log.WithTaskID(msg.TaskID)

	result := types.ResultMessage{
		TaskID:    msg.TaskID,
		WorkerID:  a.workerID,
		Timestamp: time.Now().UTC(),
	}

	out, err := a.runner.Run(ctx, msg.Target, msg.WordlistPath, msg.Options)
	if err != nil {
		taskLog.Error().Msg("fuzzer invocation failed: " + err.Error())
		result.Status = types.ResultFailed
		result.Error = err.Error()
	} else {
		result.Status = types.ResultCompleted
		result.Results = out
	}

	payload, err := json.Marshal(result)
	if err != nil {
		taskLog.Error().Msg("failed to marshal result")
		return
	}
	if err := a.broker.PushResult(ctx, payload); err != nil {
		taskLog.Error().Msg("failed to push result")
	}
}

// controlLoop polls the worker's control queue once per second with a
// non-blocking pop, not a blocking one.
func (a *Agent) controlLoop(ctx context.Context) {
	ticker := time.NewTicker(controlPollPeriod)
	defer ticker.Stop()

	workerLog := log.WithWorkerID(a.workerID)
	for {
		select {
		case <-a.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, err := a.broker.PopControl(ctx, a.workerID)
			if err != nil {
				workerLog.Error().Msg("control loop: broker error")
				continue
			}
			if payload == nil {
				continue
			}
			a.handleControl(payload)
		}
	}
}

func (a *Agent) handleControl(payload []byte) {
	var msg types.ControlMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return
	}
	switch msg.Type {
	case types.ControlUpdateThreads:
		n := msg.Threads
		if n < 1 {
			n = 1
		}
		if n > 100 {
			n = 100
		}
		atomic.StoreInt32(&a.threads, int32(n))
	case types.ControlPause:
		atomic.StoreInt32(&a.paused, 1)
	case types.ControlResume:
		atomic.StoreInt32(&a.paused, 0)
	case types.ControlShutdown:
		a.Stop()
	}
}

// healthLoop writes a heartbeat every 30 seconds.
func (a *Agent) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(healthPeriod)
	defer ticker.Stop()

	workerLog := log.WithWorkerID(a.workerID)
	for {
		select {
		case <-a.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat := types.HeartbeatMessage{
				WorkerID:        a.workerID,
				Status:          "active",
				Timestamp:       time.Now().UTC(),
				CurrentThreads:  int(atomic.LoadInt32(&a.threads)),
				ProcessorStatus: "running",
			}
			payload, err := json.Marshal(beat)
			if err != nil {
				continue
			}
			if err := a.broker.SetHealth(ctx, a.workerID, payload); err != nil {
				workerLog.Error().Msg("health loop: broker error")
			}
		}
	}
}
