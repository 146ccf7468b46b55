package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCoordinator(t *testing.T) {
	cfg := DefaultCoordinator()
	assert.Equal(t, "localhost", cfg.RedisHost)
	assert.Equal(t, 6379, cfg.RedisPort)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadCoordinatorFileMissingIsNotError(t *testing.T) {
	cfg, err := LoadCoordinatorFile(DefaultCoordinator(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultCoordinator(), cfg)
}

func TestLoadCoordinatorFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coordinator.yaml")
	require.NoError(t, os.WriteFile(path, []byte("redis_host: redis.internal\nlog_level: debug\n"), 0o644))

	cfg, err := LoadCoordinatorFile(DefaultCoordinator(), path)
	require.NoError(t, err)
	assert.Equal(t, "redis.internal", cfg.RedisHost)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 6379, cfg.RedisPort) // untouched fields keep their default
}

func TestApplyCoordinatorEnvOverridesFile(t *testing.T) {
	t.Setenv("REDIS_HOST", "redis.env")
	t.Setenv("REDIS_PORT", "7000")

	cfg := ApplyCoordinatorEnv(Coordinator{RedisHost: "redis.file", RedisPort: 6379})
	assert.Equal(t, "redis.env", cfg.RedisHost)
	assert.Equal(t, 7000, cfg.RedisPort)
}

func TestApplyWorkerEnvFallsBackToHostname(t *testing.T) {
	os.Unsetenv("WORKER_ID")
	t.Setenv("HOSTNAME", "worker-7")

	cfg := ApplyWorkerEnv(Worker{WorkerID: "default-id"})
	assert.Equal(t, "worker-7", cfg.WorkerID)
}

func TestApplyWorkerEnvPrefersWorkerID(t *testing.T) {
	t.Setenv("WORKER_ID", "explicit-id")
	t.Setenv("HOSTNAME", "worker-7")

	cfg := ApplyWorkerEnv(Worker{WorkerID: "default-id"})
	assert.Equal(t, "explicit-id", cfg.WorkerID)
}

func TestApplyWorkerEnvThreads(t *testing.T) {
	t.Setenv("WORKER_THREADS", "25")
	cfg := ApplyWorkerEnv(Worker{Threads: 10})
	assert.Equal(t, 25, cfg.Threads)
}
