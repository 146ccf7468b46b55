package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fuzzhive/fuzzhive/pkg/apiclient"
	"github.com/fuzzhive/fuzzhive/pkg/types"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Create and inspect scans",
}

var scanCreateCmd = &cobra.Command{
	Use:   "create TARGET",
	Short: "Create a new scan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := args[0]
		wordlist, _ := cmd.Flags().GetString("wordlist")
		workerIDs, _ := cmd.Flags().GetStringSlice("workers")
		scanConfigName, _ := cmd.Flags().GetString("scan-config")
		threads, _ := cmd.Flags().GetInt("threads")
		rate, _ := cmd.Flags().GetInt("rate")

		c := apiclient.New(coordinatorAddr(cmd))
		taskID, err := c.CreateScan(apiclient.CreateScanRequest{
			Target:         target,
			WordlistName:   wordlist,
			WorkerIDs:      workerIDs,
			Options:        types.Options{Threads: threads, Rate: rate},
			ScanConfigName: scanConfigName,
		})
		if err != nil {
			return fmt.Errorf("failed to create scan: %w", err)
		}
		fmt.Printf("✓ Scan created: %s\n", taskID)
		return nil
	},
}

var scanListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scans",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		c := apiclient.New(coordinatorAddr(cmd))
		tasks, err := c.ListTasks(status)
		if err != nil {
			return fmt.Errorf("failed to list scans: %w", err)
		}
		if len(tasks) == 0 {
			fmt.Println("No scans found")
			return nil
		}
		fmt.Printf("%-36s %-12s %-8s %-10s %s\n", "ID", "STATUS", "PROGRESS", "FINDINGS", "TARGET")
		for _, t := range tasks {
			fmt.Printf("%-36s %-12s %-8d %-10d %s\n", t.ID, t.Status, t.Progress, t.FindingsCount, t.Target)
		}
		return nil
	},
}

var scanGetCmd = &cobra.Command{
	Use:   "get TASK_ID",
	Short: "Show a scan's details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiclient.New(coordinatorAddr(cmd))
		task, err := c.GetTask(args[0])
		if err != nil {
			return fmt.Errorf("failed to get scan: %w", err)
		}
		out, _ := json.MarshalIndent(task, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	scanCmd.AddCommand(scanCreateCmd)
	scanCmd.AddCommand(scanListCmd)
	scanCmd.AddCommand(scanGetCmd)

	for _, cmd := range []*cobra.Command{scanCreateCmd, scanListCmd, scanGetCmd} {
		cmd.Flags().String("coordinator", "http://localhost:8070", "Coordinator API address")
	}

	scanCreateCmd.Flags().String("wordlist", "", "Registered wordlist name (required)")
	scanCreateCmd.Flags().StringSlice("workers", nil, "Worker IDs to fan the scan out to (required)")
	scanCreateCmd.Flags().String("scan-config", "", "Scan config name to merge under explicit options")
	scanCreateCmd.Flags().Int("threads", 0, "Fuzzer threads per worker")
	scanCreateCmd.Flags().Int("rate", 0, "Requests/sec cap")
	scanCreateCmd.MarkFlagRequired("wordlist")
	scanCreateCmd.MarkFlagRequired("workers")

	scanListCmd.Flags().String("status", "", "Filter by status (pending, in_progress, completed, failed)")
}

func coordinatorAddr(cmd *cobra.Command) string {
	addr, _ := cmd.Flags().GetString("coordinator")
	return addr
}
