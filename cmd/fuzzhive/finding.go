package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fuzzhive/fuzzhive/pkg/apiclient"
)

var findingCmd = &cobra.Command{
	Use:   "finding",
	Short: "Query and export findings",
}

var findingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List findings",
	RunE: func(cmd *cobra.Command, args []string) error {
		taskID, _ := cmd.Flags().GetString("task")
		severity, _ := cmd.Flags().GetString("severity")

		c := apiclient.New(coordinatorAddr(cmd))
		findings, err := c.ListFindings(taskID, severity, nil)
		if err != nil {
			return fmt.Errorf("failed to list findings: %w", err)
		}
		if len(findings) == 0 {
			fmt.Println("No findings found")
			return nil
		}
		fmt.Printf("%-10s %-6s %-8s %s\n", "SEVERITY", "STATUS", "CHECKED", "URL")
		for _, f := range findings {
			checked := "no"
			if f.Checked {
				checked = "yes"
			}
			fmt.Printf("%-10s %-6d %-8s %s\n", f.Severity, f.StatusCode, checked, f.URL)
		}
		return nil
	},
}

var findingCheckCmd = &cobra.Command{
	Use:   "check FINDING_ID",
	Short: "Mark a finding checked or unchecked",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		checked, _ := cmd.Flags().GetBool("checked")
		c := apiclient.New(coordinatorAddr(cmd))
		if err := c.MarkFindingChecked(args[0], checked); err != nil {
			return fmt.Errorf("failed to update finding: %w", err)
		}
		fmt.Println("✓ Finding updated")
		return nil
	},
}

var findingExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export findings as JSON, CSV, or HTML",
	RunE: func(cmd *cobra.Command, args []string) error {
		taskID, _ := cmd.Flags().GetString("task")
		format, _ := cmd.Flags().GetString("format")
		outPath, _ := cmd.Flags().GetString("output")

		c := apiclient.New(coordinatorAddr(cmd))
		body, err := c.ExportFindings(taskID, format)
		if err != nil {
			return fmt.Errorf("failed to export findings: %w", err)
		}

		if outPath == "" {
			fmt.Println(string(body))
			return nil
		}
		if err := os.WriteFile(outPath, body, 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Printf("✓ Wrote %s\n", outPath)
		return nil
	},
}

func init() {
	findingCmd.AddCommand(findingListCmd)
	findingCmd.AddCommand(findingCheckCmd)
	findingCmd.AddCommand(findingExportCmd)

	for _, cmd := range []*cobra.Command{findingListCmd, findingCheckCmd, findingExportCmd} {
		cmd.Flags().String("coordinator", "http://localhost:8070", "Coordinator API address")
	}

	findingListCmd.Flags().String("task", "", "Filter by task ID")
	findingListCmd.Flags().String("severity", "", "Filter by severity")

	findingCheckCmd.Flags().Bool("checked", true, "Checked state to set")

	findingExportCmd.Flags().String("task", "", "Filter by task ID")
	findingExportCmd.Flags().String("format", "json", "Export format: json, csv, or html")
	findingExportCmd.Flags().String("output", "", "Write to this file instead of stdout")
}
