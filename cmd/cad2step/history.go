// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/cad2step/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded conversion runs",
	Long: `History lists past conversion runs from the local history database,
newest first. Use "history show <run-id>" to see every file of one run.`,
	Args: cobra.NoArgs,
	RunE: runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show the files of one conversion run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of runs to list")

	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}

func openHistory() (*history.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return history.Open(cfg.History.DB)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(context.Background(), limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tTOTAL\tCONVERTED\tFAILED\tSTATUS")
	for _, r := range runs {
		status := "ok"
		switch {
		case r.AbortError != "":
			status = "aborted"
		case r.Failed > 0:
			status = "partial"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Total, r.Succeeded, r.Failed, status)
	}
	return tw.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	run, items, err := store.Get(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Run %s\n", run.ID)
	fmt.Printf("  started:  %s\n", run.StartedAt.Local().Format(time.DateTime))
	fmt.Printf("  duration: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
	fmt.Printf("  result:   %d converted, %d failed (total: %d)\n", run.Succeeded, run.Failed, run.Total)
	if run.AbortError != "" {
		fmt.Printf("  aborted:  %s\n", run.AbortError)
	}
	fmt.Println()
	for _, it := range items {
		if it.Status == history.StatusFailed {
			fmt.Printf("  %-9s %s (%s)\n", it.Status, it.Path, it.Message)
			continue
		}
		fmt.Printf("  %-9s %s\n", it.Status, it.Path)
	}
	return nil
}
