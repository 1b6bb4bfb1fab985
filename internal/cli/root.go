// Package cli provides the suite's command-line interface.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/kuitang/knowledge-e2e/internal/config"
	"github.com/kuitang/knowledge-e2e/internal/obs"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "0.1.0"

// app carries what every subcommand needs once the root command has loaded config.
type app struct {
	cfg      *config.Config
	logFile  string
	closeLog func() error
}

// closeLogFile releases the log file opened for the run, if any.
func (a *app) closeLogFile() error {
	if a.closeLog == nil {
		return nil
	}
	closeLog := a.closeLog
	a.closeLog = nil
	return closeLog()
}

// newRootCmd builds the command tree around a.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "suite",
		Short: "End-to-end suite for the knowledge service",
		Long: `suite runs and supports the end-to-end tests of the knowledge service.

Configuration comes from the environment (BASE_URL, API_URL, API_TOKEN, CI, ...).
Commands that talk to the application use API_URL; serve-fake starts an in-process
stand-in that the API and browser tests can target.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg

			path := a.logFile
			if path == "" {
				path = cfg.LogFile
			}
			closeLog, err := obs.Setup(obs.Options{Level: cfg.LogLevel, File: path})
			if err != nil {
				return err
			}
			a.closeLog = closeLog
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.logFile, "log-file", "", "also write JSON logs to this file (overrides LOG_FILE)")

	root.AddCommand(
		newProfilesCmd(a),
		newHealthCmd(a),
		newSweepCmd(a),
		newReportCmd(a),
		newServeFakeCmd(a),
		newTestCmd(a),
	)
	return root
}

// execute runs root and closes the log file whether or not the command failed.
func execute(root *cobra.Command, a *app) error {
	err := root.Execute()
	if cerr := a.closeLogFile(); err == nil {
		err = cerr
	}
	return err
}

// Execute runs the CLI with os.Args and returns the process exit code.
func Execute() int {
	a := &app{}
	if err := execute(newRootCmd(a), a); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
