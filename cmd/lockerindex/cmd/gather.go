package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/lockerindex/internal/gather"
	"github.com/Aman-CERP/lockerindex/internal/output"
	"github.com/Aman-CERP/lockerindex/internal/ui"
)

func newGatherCmd() *cobra.Command {
	var (
		jsonOutput bool
		noTUI      bool
	)

	cmd := &cobra.Command{
		Use:   "gather [type]",
		Short: "Fetch records from the locker and rebuild the index",
		Long: `Fetch every configured locker service and index its records.

Without a type the whole index is recreated. With a type, only documents
of that type are deleted and only the services producing it are fetched.

A malformed line stops the rest of that service's stream; the next
service still runs.`,
		Example: `  lockerindex gather
  lockerindex gather placeplaces
  lockerindex gather --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			docType := ""
			if len(args) > 0 {
				docType = args[0]
			}
			return runGather(ctx, cmd, docType, jsonOutput, noTUI)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the report as JSON")
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Print plain progress lines instead of the interactive view")

	return cmd
}

func runGather(ctx context.Context, cmd *cobra.Command, docType string, jsonOutput, noTUI bool) error {
	out := output.New(cmd.OutOrStdout())

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	timeout, err := cfg.Locker.TimeoutDuration()
	if err != nil {
		return err
	}

	lock, err := lockIndex(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	coord, err := openCoordinator(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = coord.Close() }()

	gcfg := gather.Config{
		BaseURL:  cfg.Locker.BaseURL,
		Services: gatherServices(cfg),
		Timeout:  timeout,
	}
	journal, err := openJournal(cfg)
	if err != nil {
		return err
	}
	if journal != nil {
		defer func() { _ = journal.Close() }()
		gcfg.Journal = journal
	}
	if jsonOutput {
		report, err := gather.New(gcfg, coord).Gather(ctx, docType)
		if err != nil {
			return err
		}
		if err := coord.FlushAndCloseWriter(); err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(noTUI),
		ui.WithNoColor(ui.DetectNoColor()),
		ui.WithSource(cfg.Locker.BaseURL)))
	if err := renderer.Start(ctx); err != nil {
		slog.Warn("progress_renderer_failed", slog.String("error", err.Error()))
	}
	defer func() { _ = renderer.Stop() }()

	gcfg.OnService = func(done, total int, rep gather.ServiceReport) {
		renderService(renderer, done, total, rep)
	}
	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageGathering, Message: cfg.Locker.BaseURL})

	report, err := gather.New(gcfg, coord).Gather(ctx, docType)
	if err != nil {
		return err
	}
	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageFlushing, Message: "flushing index"})
	if err := coord.FlushAndCloseWriter(); err != nil {
		return err
	}
	renderer.Complete(completionStats(report))
	_ = renderer.Stop()

	printReport(out, report)
	return nil
}

func renderService(r ui.Renderer, done, total int, rep gather.ServiceReport) {
	switch {
	case rep.Error != "":
		r.AddError(ui.ErrorEvent{Service: rep.Service, Err: errors.New(rep.Error)})
	case rep.Aborted:
		r.AddError(ui.ErrorEvent{
			Service: rep.Service,
			Err:     fmt.Errorf("stopped at a malformed line after %d lines", rep.Lines),
			IsWarn:  true,
		})
	}
	r.UpdateProgress(ui.ProgressEvent{Stage: ui.StageGathering, Current: done, Total: total, Service: rep.Service})
}

func completionStats(report gather.Report) ui.CompletionStats {
	stats := ui.CompletionStats{Services: len(report.Services), Duration: report.Duration}
	for _, s := range report.Services {
		stats.Indexed += s.Indexed
		stats.Empty += s.Empty
		stats.Failed += s.Failed
		stats.Removed += s.Removed
		switch {
		case s.Error != "":
			stats.Errors++
		case s.Aborted:
			stats.Warnings++
		}
	}
	return stats
}

func printReport(out *output.Writer, report gather.Report) {
	out.Newline()
	for _, s := range report.Services {
		switch {
		case s.Error != "":
			out.Errorf("%s: %s", s.Service, s.Error)
		case s.Aborted:
			out.Warningf("%s: stopped at a malformed line after %d lines", s.Service, s.Lines)
		default:
			out.Successf("%s", s.Service)
		}
		out.Table([][2]string{
			{"indexed", strconv.Itoa(s.Indexed)},
			{"empty", strconv.Itoa(s.Empty)},
			{"failed", strconv.Itoa(s.Failed)},
			{"removed", strconv.Itoa(s.Removed)},
		})
	}
	out.Newline()
	out.Statusf("", "%d documents indexed in %s", report.Indexed(), report.Duration.Round(time.Millisecond))
}
