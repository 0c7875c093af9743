package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/revbridge/internal/config"
)

const version = "0.1.0"

// Exit codes.
const (
	ExitSuccess      = 0
	ExitFindings     = 1
	ExitUsageError   = 2
	ExitAuthError    = 3
	ExitRuntimeError = 4
)

// Global flags
var (
	flagConfigPath string
	flagLogLevel   string
	flagLogFormat  string
	flagFormat     string
	flagOut        string
	flagNoColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "revbridge",
	Short: "Bridge git branches and Phabricator revisions",
	Long: "revbridge derives revision fields from a branch's commit messages " +
		"and writes review diffs back out as old/new file trees.",
	SilenceUsage: true,
}

// Run executes the root command and returns an exit code.
func Run() int {
	rootCmd.AddCommand(fieldsCmd)
	rootCmd.AddCommand(materializeCmd)
	rootCmd.AddCommand(checkMessageCmd)
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error
		return ExitUsageError
	}

	return exitCode
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print revbridge version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "revbridge version %s\n", version)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfigPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/revbridge/config.yaml)")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&flagLogFormat, "log-format", "", "Log format (text, json)")
	pf.StringVar(&flagFormat, "format", "", "Output format (text, json, markdown)")
	pf.StringVar(&flagOut, "out", "", "Report file path (default: stdout)")
	pf.BoolVar(&flagNoColor, "no-color", false, "Disable colored text output")
}

// newLogger builds the diagnostic logger. Logs go to w, never to the report
// stream.
func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// fail prints err and records the exit code it maps to.
func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	exitCode = exitCodeFor(err)
}
