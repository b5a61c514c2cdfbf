package cli

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/velora/internal/config"
)

// DefaultDebounce is how long the source must stay quiet before a re-sync.
const DefaultDebounce = 500 * time.Millisecond

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	SyncOptions
	Debounce time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{SyncOptions: SyncOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run sync whenever the requirements document changes",
		Long: `Run sync once, then again each time the requirements document is saved.
Bursts of file events are coalesced: a sync starts only after the document
has been quiet for the debounce interval. Failed runs are reported and
watching continues. Stop with Ctrl-C.

Example:
  velora watch --source docs/requirements.md --debounce 2s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(opts.RootOptions, overrides{Source: opts.Source, Mode: opts.Mode, Timeout: opts.Timeout})
			if err != nil {
				return err
			}
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}
			return runWatch(ctx, opts, cfg, out)
		},
	}

	cmd.Flags().StringVarP(&opts.Source, "source", "s", "", "requirements document (overrides source.path)")
	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", "", "update mode: new_only|full_sync|intelligent")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write the reconciliation result JSON here (overrides output.result)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "cap each run's wall time (overrides run.timeout)")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", DefaultDebounce, "quiet period before a re-sync")

	return cmd
}

func runWatch(ctx context.Context, opts *WatchOptions, cfg config.Config, out *OutputFormatter) error {
	logger := opts.Logger

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create file watcher", err)
	}
	defer func() {
		if closeErr := watcher.Close(); closeErr != nil {
			logger.Error("error closing watcher", zap.Error(closeErr))
		}
	}()

	// Watch the directory: editors often replace the file on save, which
	// drops a watch on the file itself.
	target, err := filepath.Abs(cfg.Source.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid source path", err)
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return WrapExitError(ExitCommandError, "failed to watch source directory", err)
	}
	logger.Info("watching", zap.String("path", target), zap.Duration("debounce", opts.Debounce))

	run := func(ctx context.Context) {
		if _, err := syncOnce(ctx, &opts.SyncOptions, cfg, out); err != nil {
			logger.Warn("sync failed", zap.Error(err), zap.Int("exit_code", GetExitCode(err)))
		}
	}
	run(ctx)
	watchLoop(ctx, watcher.Events, watcher.Errors, target, opts.Debounce, logger, run)
	return nil
}

// watchLoop calls run once target has seen no write, create or rename event
// for debounce. It returns when ctx is done or either channel closes.
func watchLoop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, target string, debounce time.Duration, logger *zap.Logger, run func(context.Context)) {
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			if !relevant(event, target) {
				continue
			}
			logger.Debug("source changed", zap.String("op", event.Op.String()))
			timer.Reset(debounce)

		case err, ok := <-errs:
			if !ok {
				return
			}
			logger.Warn("watcher error", zap.Error(err))

		case <-timer.C:
			run(ctx)
		}
	}
}

func relevant(event fsnotify.Event, target string) bool {
	if filepath.Clean(event.Name) != target {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}
