package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/velora/internal/classify"
	"github.com/roach88/velora/internal/config"
	"github.com/roach88/velora/internal/document"
	"github.com/roach88/velora/internal/ir"
	"github.com/roach88/velora/internal/reconcile"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	Source string
	Mode   string
	Diff   bool
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what sync would do without generating anything",
		Long: `Classify every requirement against the mapping store and print the
action sync would take for it. Nothing is generated and nothing is written.

In intelligent mode the materiality judge still runs for modified
requirements.

Example:
  velora plan --mode intelligent --diff`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(opts.RootOptions, overrides{Source: opts.Source, Mode: opts.Mode})
			if err != nil {
				return err
			}
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}
			return runPlan(ctx, opts.RootOptions, cfg, out, opts.Diff)
		},
	}

	cmd.Flags().StringVarP(&opts.Source, "source", "s", "", "requirements document (overrides source.path)")
	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", "", "update mode: new_only|full_sync|intelligent")
	cmd.Flags().BoolVar(&opts.Diff, "diff", false, "show a unified diff for modified requirements")

	return cmd
}

func runPlan(ctx context.Context, opts *RootOptions, cfg config.Config, out *OutputFormatter, diff bool) error {
	raw, err := document.Read(ctx, cfg.Source.Path)
	if err != nil {
		runErr := &reconcile.RunError{Kind: ir.KindSourceUnavailable, Message: "cannot read requirements document", Err: err}
		return WrapExitError(ExitCommandError, "source unavailable", runErr)
	}

	rt, err := openRuntime(ctx, cfg, opts.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			opts.Logger.Error("error closing resources", zap.Error(closeErr))
		}
	}()

	plan, err := rt.orch.PlanDocument(ctx, raw)
	if err != nil {
		return WrapExitError(ExitFailure, "plan cancelled", err)
	}
	return out.Success(planView{Plan: plan, diff: diff})
}

// planView renders a plan. JSON output is the plan itself.
type planView struct {
	reconcile.Plan
	diff bool
}

func (v planView) WriteText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "mode: %s\n", v.Mode)
	fmt.Fprintf(&b, "planned: CREATE=%d REGENERATE=%d SKIP=%d RETIRE=%d\n",
		v.Count(ir.ActionCreate), v.Count(ir.ActionRegenerate), v.Count(ir.ActionSkip), v.Count(ir.ActionRetire))

	for _, pa := range v.Actions {
		c := pa.Change
		fmt.Fprintf(&b, "  %-10s %-9s %s", pa.Decision.Action, c.Kind, c.RequirementID)
		if c.Materiality != ir.MaterialityNone {
			fmt.Fprintf(&b, " [%s]", c.Materiality)
		}
		if c.Kind == ir.ChangeModified {
			fmt.Fprintf(&b, " +%d/-%d", c.Diff.LinesAdded, c.Diff.LinesRemoved)
		}
		if pa.Decision.Reason != "" {
			fmt.Fprintf(&b, " (%s)", pa.Decision.Reason)
		}
		b.WriteByte('\n')
		if v.diff && c.Kind == ir.ChangeModified {
			for _, line := range strings.Split(strings.TrimRight(classify.UnifiedDiff(c.PreviousText, c.CurrentText), "\n"), "\n") {
				fmt.Fprintf(&b, "      %s\n", line)
			}
		}
	}
	writePlanWarnings(&b, v.Warnings)

	_, err := io.WriteString(w, b.String())
	return err
}

func writePlanWarnings(b *strings.Builder, warnings []ir.Issue) {
	if len(warnings) == 0 {
		return
	}
	b.WriteString("warnings:\n")
	for _, w := range warnings {
		fmt.Fprintf(b, "  %s %s: %s\n", w.RequirementID, w.Kind, w.Message)
	}
}
