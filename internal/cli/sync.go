package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/velora/internal/cache"
	"github.com/roach88/velora/internal/config"
	"github.com/roach88/velora/internal/document"
	"github.com/roach88/velora/internal/ir"
	"github.com/roach88/velora/internal/reconcile"
	"github.com/roach88/velora/internal/report"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Source  string
	Mode    string
	Out     string
	DryRun  bool
	Timeout time.Duration

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs reconcile.RunIDGenerator
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile test cases with the requirements document",
		Long: `Reconcile generated test cases with the requirements document.

The document is fingerprinted and compared with the committed mapping store.
Added requirements get test cases; modified and removed ones are handled
according to the update mode (new_only, full_sync or intelligent). The
reconciliation result is written as JSON for the destination writer and the
mapping store is committed once at the end of the run.

Exit codes:
  0  every action succeeded or was skipped
  1  some requirements failed or were cancelled
  2  configuration or source document error
  3  the mapping store could not be committed (nothing was persisted)

Example:
  velora sync --source docs/requirements.md --out result.json
  velora sync --mode full_sync --dry-run
  velora sync --timeout 10m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSync(ctx, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.Source, "source", "s", "", "requirements document (overrides source.path)")
	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", "", "update mode: new_only|full_sync|intelligent")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write the reconciliation result JSON here (overrides output.result)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "plan only: classify and decide without generating or committing")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "cap the run's wall time; unfinished requirements are cancelled (overrides run.timeout)")

	return cmd
}

func runSync(ctx context.Context, opts *SyncOptions, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(opts.RootOptions, overrides{Source: opts.Source, Mode: opts.Mode, Timeout: opts.Timeout})
	if err != nil {
		return err
	}
	out := &OutputFormatter{Format: opts.Format, Writer: stdout, ErrWriter: stderr, Verbose: opts.Verbose}

	if opts.DryRun {
		return runPlan(ctx, opts.RootOptions, cfg, out, false)
	}
	_, err = syncOnce(ctx, opts, cfg, out)
	return err
}

// syncOnce performs one reconciliation run and reports it on out.
func syncOnce(ctx context.Context, opts *SyncOptions, cfg config.Config, out *OutputFormatter) (*reconcile.Result, error) {
	logger := opts.Logger.With(zap.String("source", cfg.Source.Path))

	raw, err := document.Read(ctx, cfg.Source.Path)
	if err != nil {
		runErr := &reconcile.RunError{Kind: ir.KindSourceUnavailable, Message: "cannot read requirements document", Err: err}
		return nil, WrapExitError(ExitCommandError, "source unavailable", runErr)
	}
	out.VerboseLog("read %d requirement section(s) from %s", len(raw), cfg.Source.Path)

	var extra []reconcile.Option
	if opts.RunIDs != nil {
		extra = append(extra, reconcile.WithRunIDs(opts.RunIDs))
	}
	rt, err := openRuntime(ctx, cfg, logger, extra...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			logger.Error("error closing resources", zap.Error(closeErr))
		}
	}()

	runCtx := ctx
	if cfg.Run.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.Run.Timeout)
		defer cancel()
	}
	res, runErr := rt.orch.RunDocument(runCtx, raw)
	if runErr != nil && res == nil {
		return nil, WrapExitError(ExitFailure, "run aborted", runErr)
	}

	if err := rt.recordRun(ctx, res); err != nil {
		logger.Warn("failed to record run", zap.Error(err))
	}
	if path := cfg.Output.Metrics; path != "" {
		if err := rt.metrics.WriteTextfile(path); err != nil {
			logger.Warn("failed to write metrics", zap.Error(err))
		}
	}

	if reconcile.IsPersistFailure(runErr) {
		return res, WrapExitError(ExitPersistFailure, "mapping store commit failed", runErr)
	}

	resultPath := opts.Out
	if resultPath == "" {
		resultPath = cfg.Output.Result
	}
	if resultPath != "" {
		if err := writeResult(resultPath, res); err != nil {
			return res, WrapExitError(ExitCommandError, "failed to write result", err)
		}
		logger.Info("result written", zap.String("path", resultPath))
	}

	if err := out.SuccessRun(res.RunID, summarize(res)); err != nil {
		return res, err
	}
	if n := res.Result.CountsByOutcome[ir.OutcomeFailed]; n > 0 {
		return res, NewExitError(ExitFailure, fmt.Sprintf("%d requirement(s) failed", n))
	}
	return res, nil
}

// resultDocument is the file consumed by the destination writer.
type resultDocument struct {
	RunID      string                  `json:"run_id"`
	Digest     string                  `json:"digest"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	Result     ir.ReconciliationResult `json:"result"`
}

// writeResult replaces path atomically so a reader never sees a partial file.
func writeResult(path string, res *reconcile.Result) error {
	data, err := json.MarshalIndent(resultDocument{
		RunID:      res.RunID,
		Digest:     res.Digest,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Result:     res.Result,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	data = append(data, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}

// syncSummary is the command output of a run.
type syncSummary struct {
	Digest      string                  `json:"digest"`
	Committed   bool                    `json:"committed"`
	Generations int64                   `json:"generations"`
	Sources     map[cache.Source]int    `json:"cache_sources"`
	Result      ir.ReconciliationResult `json:"result"`

	runID string
}

func summarize(res *reconcile.Result) syncSummary {
	return syncSummary{
		Digest:      res.Digest,
		Committed:   res.Committed,
		Generations: res.Generations,
		Sources:     res.Sources,
		Result:      res.Result,
		runID:       res.RunID,
	}
}

func (s syncSummary) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "run %s\n", s.runID)
	if err := report.WriteText(w, s.Result); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "generations: %d  committed: %t  digest: %s\n", s.Generations, s.Committed, s.Digest)
	return err
}
