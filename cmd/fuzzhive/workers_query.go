package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fuzzhive/fuzzhive/pkg/apiclient"
)

// workersCmd groups read/adjust operations against already-running
// workers, as distinct from workerCmd which starts a worker process.
var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "Query and adjust registered workers",
}

var workersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered workers and their liveness",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiclient.New(coordinatorAddr(cmd))
		workers, err := c.ListWorkers()
		if err != nil {
			return fmt.Errorf("failed to list workers: %w", err)
		}
		if len(workers) == 0 {
			fmt.Println("No workers found")
			return nil
		}
		fmt.Printf("%-20s %-10s %-8s %s\n", "WORKER ID", "STATUS", "THREADS", "HOSTNAME")
		for _, w := range workers {
			fmt.Printf("%-20s %-10s %-8d %s\n", w.WorkerID, w.Status, w.Threads, w.Hostname)
		}
		return nil
	},
}

var workersThreadsCmd = &cobra.Command{
	Use:   "set-threads WORKER_ID THREADS",
	Short: "Adjust a worker's thread count",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var threads int
		if _, err := fmt.Sscanf(args[1], "%d", &threads); err != nil {
			return fmt.Errorf("invalid thread count %q", args[1])
		}
		c := apiclient.New(coordinatorAddr(cmd))
		if err := c.UpdateWorkerThreads(args[0], threads); err != nil {
			return fmt.Errorf("failed to update thread count: %w", err)
		}
		fmt.Println("✓ Thread count updated")
		return nil
	},
}

func init() {
	workersCmd.AddCommand(workersListCmd)
	workersCmd.AddCommand(workersThreadsCmd)

	for _, cmd := range []*cobra.Command{workersListCmd, workersThreadsCmd} {
		cmd.Flags().String("coordinator", "http://localhost:8070", "Coordinator API address")
	}
}
