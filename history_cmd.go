package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-backup/internal/history"
)

// defaultHistoryLimit bounds "history list" output when --limit is unset.
const defaultHistoryLimit = 20

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the local run-history ledger",
	}

	cmd.AddCommand(newHistoryListCmd())

	return cmd
}

func newHistoryListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent job runs",
		Long: `List the most recent recorded job runs, newest first. Restrict to one
job with the persistent --job flag.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistoryList(cmd, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", defaultHistoryLimit, "maximum number of runs to list")

	return cmd
}

func runHistoryList(cmd *cobra.Command, limit int) error {
	cc := mustCLIContext(cmd.Context())

	hist, err := openHistoryStore(cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}
	defer hist.Close()

	runs, err := hist.Recent(cmd.Context(), resolveJobFilter(), limit)
	if err != nil {
		return fmt.Errorf("listing run history: %w", err)
	}

	if flagJSON {
		return printHistoryJSON(runs)
	}

	printHistoryTable(runs)

	return nil
}

func printHistoryJSON(runs []history.RunSummary) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(runs); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

func printHistoryTable(runs []history.RunSummary) {
	if len(runs) == 0 {
		fmt.Println("No recorded runs.")
		return
	}

	headers := []string{"STARTED", "JOB", "STATUS", "PROCESSED", "UPLOADED", "SKIPPED", "BYTES", "ERRORS"}
	rows := make([][]string, len(runs))

	for i, r := range runs {
		status := "ok"
		if r.Failed {
			status = "FAILED"
		}

		rows[i] = []string{
			formatTime(r.StartedAt),
			r.JobName,
			status,
			fmt.Sprintf("%d", r.FilesProcessed),
			fmt.Sprintf("%d", r.FilesUploaded),
			fmt.Sprintf("%d", r.FilesSkipped),
			formatSize(r.BytesTransferred),
			fmt.Sprintf("%d", r.ErrorCount),
		}
	}

	printTable(os.Stdout, headers, rows)
}
