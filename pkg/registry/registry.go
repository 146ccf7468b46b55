// Package registry maintains the Worker Registry: a read-mostly view over
// the Broker Client's two hashes, workers:active and workers:health. It
// owns no data of its own — the broker's hashes are authoritative and
// workers write them directly.
package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fuzzhive/fuzzhive/pkg/apierrors"
	"github.com/fuzzhive/fuzzhive/pkg/broker"
	"github.com/fuzzhive/fuzzhive/pkg/metrics"
	"github.com/fuzzhive/fuzzhive/pkg/types"
)

// StalenessThreshold is 3x the 30s heartbeat interval.
const StalenessThreshold = 90 * time.Second

// Registry answers worker-liveness queries for the Public API.
type Registry struct {
	broker *broker.Broker
	now    func() time.Time
}

// New wraps a Broker Client. now defaults to time.Now and is overridable
// for deterministic staleness tests.
func New(b *broker.Broker) *Registry {
	return &Registry{broker: b, now: time.Now}
}

// List joins workers:active with workers:health and reports each worker
// as active or offline depending on heartbeat recency. An orphaned active
// descriptor with no health entry at all is reported offline, never
// dropped.
func (r *Registry) List(ctx context.Context) ([]*types.WorkerRecord, error) {
	active, err := r.broker.AllActive(ctx)
	if err != nil {
		return nil, err
	}
	health, err := r.broker.AllHealth(ctx)
	if err != nil {
		return nil, err
	}

	now := r.now()
	records := make([]*types.WorkerRecord, 0, len(active))
	for workerID, raw := range active {
		var desc types.ActiveDescriptor
		if err := json.Unmarshal(raw, &desc); err != nil {
			return nil, apierrors.Wrap(apierrors.MalformedResult, err)
		}

		record := &types.WorkerRecord{
			WorkerID:     workerID,
			Hostname:     desc.Hostname,
			Threads:      desc.Threads,
			RegisteredAt: desc.RegisteredAt,
			Status:       types.WorkerOffline,
		}

		if hb, ok := health[workerID]; ok {
			var beat types.HeartbeatMessage
			if err := json.Unmarshal(hb, &beat); err != nil {
				return nil, apierrors.Wrap(apierrors.MalformedResult, err)
			}
			record.LastSeen = beat.Timestamp
			record.Threads = beat.CurrentThreads
			if now.Sub(beat.Timestamp) <= StalenessThreshold {
				record.Status = types.WorkerActive
			}
		}

		records = append(records, record)
	}

	var activeCount, offlineCount float64
	for _, rec := range records {
		if rec.Status == types.WorkerActive {
			activeCount++
		} else {
			offlineCount++
		}
	}
	metrics.WorkersActive.Set(activeCount)
	metrics.WorkersOffline.Set(offlineCount)

	return records, nil
}

// Get returns one worker's current record, or NotFound if it never
// registered.
func (r *Registry) Get(ctx context.Context, workerID string) (*types.WorkerRecord, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range all {
		if rec.WorkerID == workerID {
			return rec, nil
		}
	}
	return nil, apierrors.New(apierrors.NotFound, "worker %s not registered", workerID)
}

// Register writes a worker's active descriptor into workers:active, the
// same entry the worker agent writes through the broker at startup.
func (r *Registry) Register(ctx context.Context, desc types.ActiveDescriptor) error {
	payload, err := json.Marshal(desc)
	if err != nil {
		return apierrors.Wrap(apierrors.StoreFailure, err)
	}
	return r.broker.SetActive(ctx, desc.WorkerID, payload)
}

// Deregister removes the active descriptor on graceful worker shutdown.
func (r *Registry) Deregister(ctx context.Context, workerID string) error {
	return r.broker.RemoveActive(ctx, workerID)
}

// Heartbeat overwrites a worker's health entry, the same entry the worker
// agent's health loop writes through the broker every 30s.
func (r *Registry) Heartbeat(ctx context.Context, beat types.HeartbeatMessage) error {
	payload, err := json.Marshal(beat)
	if err != nil {
		return apierrors.Wrap(apierrors.StoreFailure, err)
	}
	return r.broker.SetHealth(ctx, beat.WorkerID, payload)
}
