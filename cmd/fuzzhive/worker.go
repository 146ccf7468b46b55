package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fuzzhive/fuzzhive/pkg/broker"
	"github.com/fuzzhive/fuzzhive/pkg/config"
	"github.com/fuzzhive/fuzzhive/pkg/fuzzer"
	"github.com/fuzzhive/fuzzhive/pkg/log"
	"github.com/fuzzhive/fuzzhive/pkg/workeragent"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Worker node operations",
}

var workerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a worker node",
	Long:  `Start a FuzzHive worker: registers with the broker and runs the task, control, and health loops.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.DefaultWorker()
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.LoadWorkerFile(cfg, configPath)
		if err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
		cfg = config.ApplyWorkerEnv(cfg)

		if v, _ := cmd.Flags().GetString("worker-id"); v != "" {
			cfg.WorkerID = v
		}
		if v, _ := cmd.Flags().GetString("redis-host"); v != "" {
			cfg.RedisHost = v
		}
		if v, _ := cmd.Flags().GetInt("redis-port"); v != 0 {
			cfg.RedisPort = v
		}
		if v, _ := cmd.Flags().GetInt("threads"); v != 0 {
			cfg.Threads = v
		}

		b, err := broker.New(broker.Config{Addr: fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort), Password: cfg.RedisPassword})
		if err != nil {
			// Broker unreachable at startup is fatal; workers don't retry.
			return fmt.Errorf("failed to connect to broker: %w", err)
		}

		runner := fuzzer.New(cfg.FfufPath)
		hostname, _ := os.Hostname()
		agent := workeragent.New(cfg.WorkerID, hostname, b, runner, cfg.Threads)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		errCh := make(chan error, 1)
		go func() {
			log.Info("starting worker " + cfg.WorkerID)
			if err := agent.Run(ctx); err != nil {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			log.Info("shutting down worker")
		case err := <-errCh:
			fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		}

		agent.Stop()
		return nil
	},
}

func init() {
	workerCmd.AddCommand(workerStartCmd)

	workerStartCmd.Flags().String("config", "", "Path to a YAML config file")
	workerStartCmd.Flags().String("worker-id", "", "Unique worker ID (overrides config/env/default hostname)")
	workerStartCmd.Flags().String("redis-host", "", "Redis host (overrides config/env/default)")
	workerStartCmd.Flags().Int("redis-port", 0, "Redis port (overrides config/env/default)")
	workerStartCmd.Flags().Int("threads", 0, "Worker thread count (overrides config/env/default)")
}
