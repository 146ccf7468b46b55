package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fuzzhive/fuzzhive/pkg/api"
	"github.com/fuzzhive/fuzzhive/pkg/broker"
	"github.com/fuzzhive/fuzzhive/pkg/config"
	"github.com/fuzzhive/fuzzhive/pkg/log"
	"github.com/fuzzhive/fuzzhive/pkg/metrics"
	"github.com/fuzzhive/fuzzhive/pkg/registry"
	"github.com/fuzzhive/fuzzhive/pkg/storage"
	"github.com/fuzzhive/fuzzhive/pkg/taskmanager"
	"github.com/fuzzhive/fuzzhive/pkg/wordlists"
)

var coordinatorCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Coordinator node operations",
}

var coordinatorStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the coordinator",
	Long: `Start the FuzzHive coordinator: the HTTP API server, the metrics
server, and the Task Manager's result fan-in loop.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.DefaultCoordinator()
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.LoadCoordinatorFile(cfg, configPath)
		if err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
		cfg = config.ApplyCoordinatorEnv(cfg)

		if v, _ := cmd.Flags().GetString("redis-host"); v != "" {
			cfg.RedisHost = v
		}
		if v, _ := cmd.Flags().GetInt("redis-port"); v != 0 {
			cfg.RedisPort = v
		}
		if v, _ := cmd.Flags().GetString("redis-password"); v != "" {
			cfg.RedisPassword = v
		}
		if v, _ := cmd.Flags().GetString("db-path"); v != "" {
			cfg.DBPath = v
		}

		store, err := storage.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer store.Close()

		b, err := broker.New(broker.Config{Addr: fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort), Password: cfg.RedisPassword})
		if err != nil {
			// Broker unreachable at startup is fatal; the coordinator won't retry.
			return fmt.Errorf("failed to connect to broker: %w", err)
		}

		words := wordlists.New(nil)
		words.Add("common.txt", "/opt/wordlists/common.txt")

		mgr := taskmanager.New(store, b, words)
		reg := registry.New(b)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go mgr.Run(ctx)
		defer mgr.Stop()

		apiServer := api.New(store, mgr, reg)
		httpServer := &http.Server{Addr: cfg.APIAddr, Handler: apiServer.Handler()}
		metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}

		errCh := make(chan error, 2)
		go func() {
			log.Info("starting API server on " + cfg.APIAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("API server error: %w", err)
			}
		}()
		go func() {
			log.Info("starting metrics server on " + cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			log.Info("shutting down coordinator")
		case err := <-errCh:
			fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
		metricsServer.Shutdown(shutdownCtx)

		return nil
	},
}

func init() {
	coordinatorCmd.AddCommand(coordinatorStartCmd)

	coordinatorStartCmd.Flags().String("config", "", "Path to a YAML config file")
	coordinatorStartCmd.Flags().String("redis-host", "", "Redis host (overrides config/env/default)")
	coordinatorStartCmd.Flags().Int("redis-port", 0, "Redis port (overrides config/env/default)")
	coordinatorStartCmd.Flags().String("redis-password", "", "Redis password")
	coordinatorStartCmd.Flags().String("db-path", "", "SQLite database path")
}
