// Package config loads coordinator and worker configuration from a YAML
// file, environment variables, and CLI flags, in that increasing order
// of precedence.
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Coordinator holds everything the coordinator binary needs to start.
type Coordinator struct {
	RedisHost     string `yaml:"redis_host"`
	RedisPort     int    `yaml:"redis_port"`
	RedisPassword string `yaml:"redis_password"`
	DBPath        string `yaml:"db_path"`
	LogLevel      string `yaml:"log_level"`
	APIAddr       string `yaml:"api_addr"`
	MetricsAddr   string `yaml:"metrics_addr"`
}

// DefaultCoordinator returns the built-in defaults.
func DefaultCoordinator() Coordinator {
	return Coordinator{
		RedisHost:   "localhost",
		RedisPort:   6379,
		DBPath:      "fuzzhive.db",
		LogLevel:    "info",
		APIAddr:     ":8070",
		MetricsAddr: ":9070",
	}
}

// Worker holds everything the worker binary needs to start.
type Worker struct {
	WorkerID      string `yaml:"worker_id"`
	RedisHost     string `yaml:"redis_host"`
	RedisPort     int    `yaml:"redis_port"`
	RedisPassword string `yaml:"redis_password"`
	Threads       int    `yaml:"threads"`
	LogLevel      string `yaml:"log_level"`
	FfufPath      string `yaml:"ffuf_path"`
}

// DefaultWorker returns the built-in defaults.
func DefaultWorker() Worker {
	hostname, _ := os.Hostname()
	return Worker{
		WorkerID:  hostname,
		RedisHost: "localhost",
		RedisPort: 6379,
		Threads:   10,
		LogLevel:  "info",
		FfufPath:  "ffuf",
	}
}

// LoadCoordinatorFile merges a YAML config file's contents on top of
// base. A missing file is not an error — defaults pass through
// unchanged, matching the documented "config file > built-in default"
// precedence step.
func LoadCoordinatorFile(base Coordinator, path string) (Coordinator, error) {
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return base, nil
	}
	if err != nil {
		return base, err
	}
	if err := yaml.Unmarshal(data, &base); err != nil {
		return base, err
	}
	return base, nil
}

// LoadWorkerFile is LoadCoordinatorFile's worker-config counterpart.
func LoadWorkerFile(base Worker, path string) (Worker, error) {
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return base, nil
	}
	if err != nil {
		return base, err
	}
	if err := yaml.Unmarshal(data, &base); err != nil {
		return base, err
	}
	return base, nil
}

// ApplyCoordinatorEnv overrides cfg fields with any of the recognized
// environment variables that are set, extended symmetrically from the
// worker env fallbacks below.
func ApplyCoordinatorEnv(cfg Coordinator) Coordinator {
	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.RedisHost = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RedisPort = n
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	return cfg
}

// ApplyWorkerEnv overrides cfg fields with the recognized worker
// environment fallbacks: WORKER_ID, REDIS_HOST, REDIS_PORT,
// REDIS_PASSWORD, WORKER_THREADS, HOSTNAME.
func ApplyWorkerEnv(cfg Worker) Worker {
	if v := os.Getenv("WORKER_ID"); v != "" {
		cfg.WorkerID = v
	} else if v := os.Getenv("HOSTNAME"); v != "" {
		cfg.WorkerID = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.RedisHost = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RedisPort = n
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("WORKER_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Threads = n
		}
	}
	return cfg
}
