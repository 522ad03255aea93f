// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/cad2step/internal/convert"
	"github.com/pdiddy/cad2step/internal/history"
	"github.com/pdiddy/cad2step/internal/host"
	"github.com/pdiddy/cad2step/internal/notify"
	"github.com/pdiddy/cad2step/internal/secrets"
	"github.com/pdiddy/cad2step/internal/worker"
	"github.com/pdiddy/cad2step/pkg/types"
)

var convertCmd = &cobra.Command{
	Use:   "convert [files...]",
	Short: "Export CAD files to STEP",
	Long: `Convert exports part (.sldprt), assembly (.sldasm), and drawing (.slddrw)
files to STEP through one host session.

With one file, --output is the output file path. With several files,
--output is a directory; outputs default to each input's own directory.
The command exits non-zero when any file fails.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringP("output", "o", "", "output file (one input) or directory (several inputs)")
	convertCmd.Flags().Bool("visible", false, "show the host window when a new instance is started")
	convertCmd.Flags().Duration("item-timeout", 0, "abort the batch when one file takes longer (default 10m, 0 keeps config)")
	convertCmd.Flags().String("bridge", "", "host bridge executable (default swbridge)")
	convertCmd.Flags().String("report", "", "write the batch report as YAML to this file")
	convertCmd.Flags().Bool("no-history", false, "do not record this run in the history database")

	_ = viper.BindPFlag("host.visible", convertCmd.Flags().Lookup("visible"))
	_ = viper.BindPFlag("host.bridge", convertCmd.Flags().Lookup("bridge"))

	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if d, _ := cmd.Flags().GetDuration("item-timeout"); d > 0 {
		cfg.Conversion.ItemTimeout = d
	}
	output, _ := cmd.Flags().GetString("output")
	reportPath, _ := cmd.Flags().GetString("report")
	noHistory, _ := cmd.Flags().GetBool("no-history")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	acquirer := host.NewAcquirer(host.NewBridgeConnector(cfg.Host.Bridge), cfg.Host, logger)
	orch := convert.NewOrchestrator(acquirer, cfg.Conversion, logger, os.Stdout)
	runID := uuid.NewString()

	var notifier *notify.Notifier
	if cfg.Notify.NATSURL != "" {
		client, err := notify.Connect(cfg.Notify.NATSURL, loadedSecrets.Get(secrets.NATSToken, ""))
		if err != nil {
			logger.Warn("notifications disabled", "error", err)
		} else {
			defer client.Close()
			notifier = notify.New(client, cfg.Notify.Subject, runID, logger)
		}
	}

	var job worker.Job
	if len(args) == 1 {
		out := output
		if out == "" && cfg.Conversion.OutputDir != "" {
			out = convert.BatchOutputPath(args[0], cfg.Conversion.OutputDir)
		}
		job = worker.SingleJob(orch, args[0], out)
	} else {
		dir := output
		if dir == "" {
			dir = cfg.Conversion.OutputDir
		}
		job = worker.BatchJob(orch, args, dir)
	}

	printProgress := func(ev types.ProgressEvent) {
		fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", ev.Current, ev.Total, ev.Identifier)
	}
	var notifySink types.ProgressSink
	if notifier != nil {
		notifySink = notifier.Sink()
	}

	events, err := worker.NewRunner().Start(ctx, job)
	if err != nil {
		return err
	}
	final := worker.Drain(events, types.Tee(printProgress, notifySink))

	report := final.Report
	report.RunID = runID
	var runErr error
	if final.Kind == worker.EventFailure {
		runErr = final.Err
	}
	fatalErr := runErr
	if !isFatal(runErr) {
		fatalErr = nil
	}

	if notifier != nil {
		notifier.Done(report, runErr)
	}
	if cfg.History.Enabled && !noHistory {
		recordRun(ctx, cfg.History, report, fatalErr)
	}
	if reportPath != "" {
		if err := convert.WriteReport(reportPath, report); err != nil {
			logger.Warn("writing report failed", "path", reportPath, "error", err)
		}
	}

	single := len(args) == 1
	if !single {
		for _, f := range report.Failures {
			fmt.Fprintf(os.Stderr, "[FAILED] %s: %s\n", f.InputPath, f.Message)
		}
	}
	msg, err := convertOutcome(single, final)
	if msg != "" {
		fmt.Println(msg)
	}
	return err
}

// convertOutcome maps the final event of a run to the line printed on
// success and the command's error. Any failed file makes the command fail.
func convertOutcome(single bool, final worker.Event) (string, error) {
	if final.Kind == worker.EventFailure {
		if final.Err != nil {
			return "", final.Err
		}
		return "", errors.New("conversion failed")
	}
	report := final.Report
	if report.HasFailures() {
		if single {
			return "", errors.New(report.Failures[0].Message)
		}
		return "", fmt.Errorf("%d of %d file(s) failed conversion", len(report.Failures), report.Total)
	}
	if single {
		if len(report.Successes) == 0 {
			return "", errors.New("conversion produced no output")
		}
		return "Success: " + report.Successes[0], nil
	}
	return "", nil
}

// isFatal reports whether err stopped the run as a whole rather than
// describing a single file.
func isFatal(err error) bool {
	if err == nil {
		return false
	}
	var connErr *host.ConnectionError
	return convert.IsAbort(err) || errors.As(err, &connErr)
}

func recordRun(ctx context.Context, cfg types.HistoryConfig, report types.BatchReport, fatalErr error) {
	store, err := history.Open(cfg.DB)
	if err != nil {
		logger.Warn("history unavailable", "db", cfg.DB, "error", err)
		return
	}
	defer store.Close()

	// The run is recorded even when the batch was interrupted.
	if _, err := store.Record(context.WithoutCancel(ctx), report, fatalErr); err != nil {
		logger.Warn("recording run failed", "run_id", report.RunID, "error", err)
	}
}
