package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newTestBroker dials the Redis instance at localhost:6379 and skips the
// test outright when it isn't reachable, the
// same "skip if the real dependency is absent" pattern used for the
// containerd integration tests this package's Go counterpart borrows its
// loop shape from.
func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	b, err := New(Config{Addr: "localhost:6379"})
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestPushAndBlockingPopTask(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, b.PushTask(ctx, "w1", []byte(`{"task_id":"t1"}`)))

	got, err := b.BlockingPopTask(ctx, "w1", time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte(`{"task_id":"t1"}`), got)
}

func TestBlockingPopTaskTimesOutWithoutError(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	got, err := b.BlockingPopTask(ctx, "empty-queue", 200*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestPushAndBlockingPopResult(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, b.PushResult(ctx, []byte(`{"task_id":"t1","status":"completed"}`)))

	got, err := b.BlockingPopResult(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte(`{"task_id":"t1","status":"completed"}`), got)
}

func TestControlQueueIsNonBlocking(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	got, err := b.PopControl(ctx, "w1")
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, b.PushControl(ctx, "w1", []byte(`{"type":"pause"}`)))
	got, err = b.PopControl(ctx, "w1")
	require.NoError(t, err)
	require.Equal(t, []byte(`{"type":"pause"}`), got)
}

func TestActiveWorkersHash(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, b.SetActive(ctx, "w1", []byte(`{"worker_id":"w1"}`)))
	require.NoError(t, b.SetActive(ctx, "w2", []byte(`{"worker_id":"w2"}`)))

	all, err := b.AllActive(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, []byte(`{"worker_id":"w1"}`), all["w1"])

	require.NoError(t, b.RemoveActive(ctx, "w1"))
	all, err = b.AllActive(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	_, ok := all["w1"]
	require.False(t, ok)
}

func TestHealthHash(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, b.SetHealth(ctx, "w1", []byte(`{"status":"healthy"}`)))
	all, err := b.AllHealth(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte(`{"status":"healthy"}`), all["w1"])
}
