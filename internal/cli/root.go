// Package cli provides the command-line interface for autopilot.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/msageha/autopilot/internal/setup"
)

// BuildInfo contains version information set at build time via ldflags.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// GlobalFlags holds flags available to all commands.
type GlobalFlags struct {
	// Dir is where project discovery starts.
	Dir     string
	Verbose bool
	Quiet   bool
}

func newRootCmd(flags *GlobalFlags, info BuildInfo) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autopilot",
		Short: "Run project commands automatically when files change",
		Long: `autopilot watches a project and runs the commands its rules name when
matching files change: tests when test files change, the linter when sources
change, an install when the manifest changes.

Commands are debounced per rule, ordered by priority and capped in
concurrency. Configuration lives in .autopilot/config.yaml.`,
		Version:      formatVersion(info),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.Dir, "dir", "C", ".", "project directory")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "log warnings and errors only")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(
		newInitCmd(flags),
		newRunCmd(flags),
		newStatusCmd(flags),
		newStopCmd(flags),
		newCheckCmd(flags),
		newVersionCmd(info),
	)
	return cmd
}

func formatVersion(info BuildInfo) string {
	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = "none"
	}
	if info.Date == "" {
		info.Date = "unknown"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.Date)
}

func newVersionCmd(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "autopilot %s\n", formatVersion(info))
		},
	}
}

// Execute runs the root command with the provided context and build info.
func Execute(ctx context.Context, info BuildInfo) error {
	return newRootCmd(&GlobalFlags{}, info).ExecuteContext(ctx)
}

// logLevel applies the verbosity flags on top of a configured level.
func (f *GlobalFlags) logLevel(configured string) string {
	switch {
	case f.Verbose:
		return zerolog.LevelDebugValue
	case f.Quiet:
		return zerolog.LevelWarnValue
	default:
		return configured
	}
}

// consoleLogger is the logger for short-lived commands.
func consoleLogger(flags *GlobalFlags, w io.Writer) zerolog.Logger {
	level := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(flags.logLevel("info")); err == nil {
		level = l
	}
	noColor := os.Getenv("NO_COLOR") != ""
	if f, ok := w.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		noColor = true
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: noColor, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()
}

// projectRoot finds the initialized project containing flags.Dir.
func projectRoot(flags *GlobalFlags) (string, error) {
	return setup.FindRoot(flags.Dir)
}
