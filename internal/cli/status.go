package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/velora/internal/cache"
	"github.com/roach88/velora/internal/config"
	"github.com/roach88/velora/internal/ir"
	"github.com/roach88/velora/internal/mapping"
	"github.com/roach88/velora/internal/store"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Runs int

	// Now allows overriding the clock (for testing).
	Now func() time.Time
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts, Now: time.Now}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the committed mapping store",
		Long: `Show every requirement in the committed mapping store with its test
case ids. With a SQLite database, cache statistics and the most recent runs
are listed too. When an Upstash remote cache is configured it is pinged.

Example:
  velora status --runs 10
  velora status --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.RootOptions, overrides{})
			if err != nil {
				return err
			}
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}
			st, err := collectStatus(cmd.Context(), opts, cfg)
			if err != nil {
				return err
			}
			return out.Success(st)
		},
	}

	cmd.Flags().IntVar(&opts.Runs, "runs", 5, "number of recent runs to show (SQLite only)")

	return cmd
}

// statusView is the status command output.
type statusView struct {
	Backend string            `json:"backend"`
	Path    string            `json:"path"`
	Entries []ir.MappingEntry `json:"entries"`
	Cache   *store.CacheStats `json:"cache,omitempty"`
	Runs    []store.Run       `json:"runs,omitempty"`
	Remote  *remoteStatus     `json:"remote,omitempty"`

	now time.Time
}

type remoteStatus struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func collectStatus(ctx context.Context, opts *StatusOptions, cfg config.Config) (statusView, error) {
	view := statusView{Backend: cfg.Mapping.Backend, Path: cfg.Mapping.Path, now: opts.Now()}

	var backend mapping.Backend = mapping.NewFileBackend(cfg.Mapping.Path)
	if usesSQLite(cfg) {
		st, err := openStore(databasePath(cfg))
		if err != nil {
			return statusView{}, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				opts.Logger.Error("error closing database", zap.Error(closeErr))
			}
		}()
		if cfg.Mapping.Backend == "sqlite" {
			backend = st.Mappings()
		}

		stats, err := st.Cache().Stats(ctx, view.now)
		if err != nil {
			return statusView{}, WrapExitError(ExitCommandError, "failed to read cache stats", err)
		}
		view.Cache = &stats
		if view.Runs, err = st.RecentRuns(ctx, opts.Runs); err != nil {
			return statusView{}, WrapExitError(ExitCommandError, "failed to read run log", err)
		}
	}

	ledger, err := mapping.Open(ctx, backend)
	if err != nil {
		return statusView{}, WrapExitError(ExitCommandError, "failed to load mapping store", err)
	}
	view.Entries = ledger.All()

	if cfg.Cache.Remote == "upstash" {
		u, err := cache.NewOptionalUpstash(cfg.Cache.UpstashURL, cfg.Cache.UpstashToken)
		switch {
		case err != nil:
			view.Remote = &remoteStatus{Name: "upstash", Error: err.Error()}
		case u != nil:
			view.Remote = &remoteStatus{Name: u.Name(), OK: true}
			if err := u.Ping(ctx); err != nil {
				view.Remote.OK, view.Remote.Error = false, err.Error()
			}
		}
	}
	return view, nil
}

func (v statusView) WriteText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "mapping: %s (%s), %d requirement(s)\n", v.Path, v.Backend, len(v.Entries))
	for _, e := range v.Entries {
		fmt.Fprintf(&b, "  %-24s %2d test case(s)  %s  generated %s\n",
			e.RequirementID, len(e.TestCaseIDs), e.PolicyVersion, since(v.now, e.LastGeneratedAt))
	}
	if v.Cache != nil {
		fmt.Fprintf(&b, "cache: %d record(s), %d expired\n", v.Cache.Records, v.Cache.Expired)
	}
	if len(v.Runs) > 0 {
		b.WriteString("recent runs:\n")
		for _, r := range v.Runs {
			state := "ok"
			if r.Failed {
				state = "partial"
			}
			if !r.Committed {
				state += ", nothing committed"
			}
			fmt.Fprintf(&b, "  %s  %-11s %s  %s\n", r.RunID, r.Mode, since(v.now, r.StartedAt), state)
		}
	}
	if v.Remote != nil {
		if v.Remote.OK {
			fmt.Fprintf(&b, "remote cache: %s reachable\n", v.Remote.Name)
		} else {
			fmt.Fprintf(&b, "remote cache: %s unavailable: %s\n", v.Remote.Name, v.Remote.Error)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
