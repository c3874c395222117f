package commands

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/assetforge/internal/cli/ui"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// globalOptions are the persistent flags shared by every command
type globalOptions struct {
	dir      string
	noColor  bool
	logLevel string
}

// reportedError carries a formatted message for Execute to print in place of
// the plain error text
type reportedError struct {
	msg ui.Message
}

func (e *reportedError) Error() string {
	if e.msg.Context != "" {
		return fmt.Sprintf("%s: %s", e.msg.Context, e.msg.Problem)
	}
	return e.msg.Problem
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "assetforge",
		Short: "Asset registry and compilation service",
		Long: color.CyanString(`assetforge - asset management and compilation

assetforge tracks the source assets under a content root, compiles them into
runtime formats in dependency order and keeps the results fresh as files
change. Editors and tools talk to a running service over JSON-RPC; the HTTP
API and its event stream are for inspection.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.dir, "dir", "C", ".", "Project directory holding assetforge.yaml")
	rootCmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewInitCommand(opts))
	rootCmd.AddCommand(NewServeCommand(opts))
	rootCmd.AddCommand(NewScanCommand(opts))
	rootCmd.AddCommand(NewCompileCommand(opts))
	rootCmd.AddCommand(NewStatusCommand(opts))
	rootCmd.AddCommand(NewDepsCommand(opts))
	rootCmd.AddCommand(NewThumbnailCommand(opts))
	rootCmd.AddCommand(NewTokenCommand(opts))

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			kv := ui.NewKeyValueTable(out, color.NoColor)
			kv.AddRow("assetforge version", Version)
			kv.AddRow("Git commit", GitCommit)
			kv.AddRow("Build date", BuildDate)
			kv.AddRow("Go version", runtime.Version())
			kv.Render()
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		var reported *reportedError
		if errors.As(err, &reported) {
			reported.msg.NoColor = color.NoColor
			reported.msg.Write(rootCmd.ErrOrStderr())
			return err
		}
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}
