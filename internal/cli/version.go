package cli

import (
	"fmt"
	"io"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/roach88/velora/internal/ir"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Success(currentVersion())
		},
	}
}

type versionInfo struct {
	Version       string `json:"version"`
	GoVersion     string `json:"go_version"`
	MappingFormat int    `json:"mapping_format"`
}

func currentVersion() versionInfo {
	v := versionInfo{Version: Version, MappingFormat: ir.MappingFormatVersion}
	if info, ok := debug.ReadBuildInfo(); ok {
		v.GoVersion = info.GoVersion
	}
	return v
}

func (v versionInfo) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "velora %s (%s, mapping format v%d)\n", v.Version, v.GoVersion, v.MappingFormat)
	return err
}
