package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fuzzhive/fuzzhive/pkg/apiclient"
	"github.com/fuzzhive/fuzzhive/pkg/types"
)

var scanConfigCmd = &cobra.Command{
	Use:   "scan-config",
	Short: "Manage reusable scan option templates",
}

var scanConfigSaveCmd = &cobra.Command{
	Use:   "save NAME",
	Short: "Save a scan config",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetString("target")
		wordlist, _ := cmd.Flags().GetString("wordlist")
		threads, _ := cmd.Flags().GetInt("threads")
		followRedirects, _ := cmd.Flags().GetBool("follow-redirects")
		recursive, _ := cmd.Flags().GetBool("recursive")

		c := apiclient.New(coordinatorAddr(cmd))
		err := c.SaveScanConfig(types.ScanConfig{
			Name:             args[0],
			Target:           target,
			Wordlist:         wordlist,
			ThreadsPerWorker: threads,
			FollowRedirects:  followRedirects,
			Recursive:        recursive,
		})
		if err != nil {
			return fmt.Errorf("failed to save scan config: %w", err)
		}
		fmt.Printf("✓ Scan config saved: %s\n", args[0])
		return nil
	},
}

var scanConfigListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scan configs",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiclient.New(coordinatorAddr(cmd))
		cfgs, err := c.ListScanConfigs()
		if err != nil {
			return fmt.Errorf("failed to list scan configs: %w", err)
		}
		if len(cfgs) == 0 {
			fmt.Println("No scan configs found")
			return nil
		}
		fmt.Printf("%-20s %-10s %s\n", "NAME", "THREADS", "TARGET")
		for _, cfg := range cfgs {
			fmt.Printf("%-20s %-10d %s\n", cfg.Name, cfg.ThreadsPerWorker, cfg.Target)
		}
		return nil
	},
}

var scanConfigDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a scan config",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiclient.New(coordinatorAddr(cmd))
		if err := c.DeleteScanConfig(args[0]); err != nil {
			return fmt.Errorf("failed to delete scan config: %w", err)
		}
		fmt.Printf("✓ Scan config deleted: %s\n", args[0])
		return nil
	},
}

var securitySummaryCmd = &cobra.Command{
	Use:   "security-summary",
	Short: "Show aggregated severity stats across all findings",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiclient.New(coordinatorAddr(cmd))
		summary, err := c.SecuritySummary()
		if err != nil {
			return fmt.Errorf("failed to fetch security summary: %w", err)
		}
		fmt.Printf("Total findings: %v\n", summary["total_findings"])
		fmt.Printf("Unchecked: %v\n", summary["unchecked_count"])
		fmt.Printf("Severity breakdown: %v\n", summary["severity_stats"])
		return nil
	},
}

func init() {
	scanConfigCmd.AddCommand(scanConfigSaveCmd)
	scanConfigCmd.AddCommand(scanConfigListCmd)
	scanConfigCmd.AddCommand(scanConfigDeleteCmd)
	rootCmd.AddCommand(securitySummaryCmd)

	for _, cmd := range []*cobra.Command{scanConfigSaveCmd, scanConfigListCmd, scanConfigDeleteCmd, securitySummaryCmd} {
		cmd.Flags().String("coordinator", "http://localhost:8070", "Coordinator API address")
	}

	scanConfigSaveCmd.Flags().String("target", "", "Target URL template")
	scanConfigSaveCmd.Flags().String("wordlist", "", "Wordlist name")
	scanConfigSaveCmd.Flags().Int("threads", 10, "Threads per worker")
	scanConfigSaveCmd.Flags().Bool("follow-redirects", true, "Follow redirects")
	scanConfigSaveCmd.Flags().Bool("recursive", false, "Recursive fuzzing")
}
