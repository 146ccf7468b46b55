// Package broker is a typed wrapper over the Redis connection every
// coordinator and worker component moves messages through: per-worker
// task queues, the shared results queue, per-worker control queues, and
// the two worker-registry hashes.
package broker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fuzzhive/fuzzhive/pkg/apierrors"
	"github.com/fuzzhive/fuzzhive/pkg/metrics"
)

const (
	resultsQueue = "results"

	activeHash = "workers:active"
	healthHash = "workers:health"
)

// Broker is the command set every component needs: push/pop on named
// queues, and get/set/delete on the two worker-registry hashes.
type Broker struct {
	rdb *redis.Client
}

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// New dials Redis and verifies connectivity with a PING.
func New(cfg Config) (*Broker, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, apierrors.Wrap(apierrors.BrokerUnavailable, err)
	}
	return &Broker{rdb: rdb}, nil
}

func (b *Broker) Close() error { return b.rdb.Close() }

func taskQueue(workerID string) string    { return "tasks:" + workerID }
func controlQueue(workerID string) string { return "control:" + workerID }

// observe times fn under the named operation and counts it as an error in
// BrokerErrors when it returns non-nil. Broker latency and failure rate
// are both metrics FuzzHive tracks.
func observe(operation string, fn func() error) error {
	timer := metrics.NewTimer()
	err := fn()
	timer.ObserveDurationVec(metrics.BrokerOperationDuration, operation)
	if err != nil {
		metrics.BrokerErrors.WithLabelValues(operation).Inc()
	}
	return err
}

// PushTask enqueues a task assignment for one worker (RPUSH, FIFO with
// BlockingPopTask's BLPOP on the other end).
func (b *Broker) PushTask(ctx context.Context, workerID string, payload []byte) error {
	return observe("push_task", func() error {
		if err := b.rdb.RPush(ctx, taskQueue(workerID), payload).Err(); err != nil {
			return apierrors.Wrap(apierrors.BrokerUnavailable, err)
		}
		return nil
	})
}

// BlockingPopTask blocks up to timeout waiting for a task assignment. A
// timeout with nothing to pop returns (nil, nil), not an error.
func (b *Broker) BlockingPopTask(ctx context.Context, workerID string, timeout time.Duration) ([]byte, error) {
	var out []byte
	err := observe("blocking_pop_task", func() error {
		var err error
		out, err = blockingPop(ctx, b.rdb, taskQueue(workerID), timeout)
		return err
	})
	return out, err
}

// PushResult enqueues a result onto the single shared results queue every
// worker feeds and the Task Manager's fan-in loop drains.
func (b *Broker) PushResult(ctx context.Context, payload []byte) error {
	return observe("push_result", func() error {
		if err := b.rdb.RPush(ctx, resultsQueue, payload).Err(); err != nil {
			return apierrors.Wrap(apierrors.BrokerUnavailable, err)
		}
		return nil
	})
}

// BlockingPopResult blocks up to timeout waiting for a result. A timeout
// with nothing to pop returns (nil, nil).
func (b *Broker) BlockingPopResult(ctx context.Context, timeout time.Duration) ([]byte, error) {
	var out []byte
	err := observe("blocking_pop_result", func() error {
		var err error
		out, err = blockingPop(ctx, b.rdb, resultsQueue, timeout)
		return err
	})
	return out, err
}

// PushControl enqueues a control message for one worker.
func (b *Broker) PushControl(ctx context.Context, workerID string, payload []byte) error {
	return observe("push_control", func() error {
		if err := b.rdb.RPush(ctx, controlQueue(workerID), payload).Err(); err != nil {
			return apierrors.Wrap(apierrors.BrokerUnavailable, err)
		}
		return nil
	})
}

// PopControl performs a non-blocking pop: workers poll their control queue
// on a fixed interval rather than blocking on it. An empty queue returns
// (nil, nil).
func (b *Broker) PopControl(ctx context.Context, workerID string) ([]byte, error) {
	var out []byte
	err := observe("pop_control", func() error {
		val, err := b.rdb.LPop(ctx, controlQueue(workerID)).Bytes()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return apierrors.Wrap(apierrors.BrokerUnavailable, err)
		}
		out = val
		return nil
	})
	return out, err
}

func blockingPop(ctx context.Context, rdb *redis.Client, key string, timeout time.Duration) ([]byte, error) {
	res, err := rdb.BLPop(ctx, timeout, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apierrors.Wrap(apierrors.BrokerUnavailable, err)
	}
	// BLPop returns [key, value].
	if len(res) < 2 {
		return nil, nil
	}
	return []byte(res[1]), nil
}

// SetActive writes the one-time registration descriptor for a worker.
func (b *Broker) SetActive(ctx context.Context, workerID string, payload []byte) error {
	return observe("set_active", func() error {
		if err := b.rdb.HSet(ctx, activeHash, workerID, payload).Err(); err != nil {
			return apierrors.Wrap(apierrors.BrokerUnavailable, err)
		}
		return nil
	})
}

// RemoveActive deletes a worker's registration descriptor, used on clean
// shutdown.
func (b *Broker) RemoveActive(ctx context.Context, workerID string) error {
	return observe("remove_active", func() error {
		if err := b.rdb.HDel(ctx, activeHash, workerID).Err(); err != nil {
			return apierrors.Wrap(apierrors.BrokerUnavailable, err)
		}
		return nil
	})
}

// AllActive returns every registered worker's raw descriptor, keyed by
// worker id.
func (b *Broker) AllActive(ctx context.Context) (map[string][]byte, error) {
	var out map[string][]byte
	err := observe("all_active", func() error {
		var err error
		out, err = allHash(ctx, b.rdb, activeHash)
		return err
	})
	return out, err
}

// SetHealth overwrites a worker's latest heartbeat payload.
func (b *Broker) SetHealth(ctx context.Context, workerID string, payload []byte) error {
	return observe("set_health", func() error {
		if err := b.rdb.HSet(ctx, healthHash, workerID, payload).Err(); err != nil {
			return apierrors.Wrap(apierrors.BrokerUnavailable, err)
		}
		return nil
	})
}

// AllHealth returns every worker's latest heartbeat payload, keyed by
// worker id.
func (b *Broker) AllHealth(ctx context.Context) (map[string][]byte, error) {
	var out map[string][]byte
	err := observe("all_health", func() error {
		var err error
		out, err = allHash(ctx, b.rdb, healthHash)
		return err
	})
	return out, err
}

func allHash(ctx context.Context, rdb *redis.Client, key string) (map[string][]byte, error) {
	vals, err := rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, apierrors.Wrap(apierrors.BrokerUnavailable, err)
	}
	out := make(map[string][]byte, len(vals))
	for k, v := range vals {
		out[k] = []byte(v)
	}
	return out, nil
}
