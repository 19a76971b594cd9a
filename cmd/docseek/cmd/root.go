// Package cmd provides the CLI commands for docseek.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/docseek/docseek/internal/logging"
)

var (
	storeDir   string
	configPath string
	debugMode  bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the docseek CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docseek",
		Short: "Local-first hybrid document search",
		Long: `docseek crawls a set of directories, extracts and chunks their
text, and serves hybrid (BM25 + vector) search over the result —
entirely on disk, with no network services required.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&storeDir, "store", "store", "path to the docseek store directory")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a docseek.yaml config file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging to ~/.docseek/logs/")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRunE = teardownLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newFindCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newResetDBCmd())
	cmd.AddCommand(newResetFrontierCmd())
	cmd.AddCommand(newSweepCmd())
	cmd.AddCommand(newWatchCmd())

	return cmd
}

func setupLogging(cmd *cobra.Command, args []string) error {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg = logging.DebugConfig()
	}
	cfg.WriteToStderr = false

	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func teardownLogging(cmd *cobra.Command, args []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
