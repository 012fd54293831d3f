// Package commands provides the CLI commands for Mosaic.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mosaic-ai/mosaic/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	logLevel string
	logFile  string
)

var rootCmd = &cobra.Command{
	Use:   "mosaic",
	Short: "Mosaic - AI coding assistant",
	Long: `Mosaic drives a long-running conversation with an LLM provider,
executing tools in your workspace behind a human-in-the-loop approval
gate with post-hoc review of file changes.

Run 'mosaic run' to start an interactive session.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to a file instead of stderr")

	rootCmd.SetVersionTemplate(fmt.Sprintf("mosaic %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(historyCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// initLogging configures the global logger from the persistent flags.
// Conversation output goes to stdout, so file logging keeps the two
// from interleaving.
func initLogging(configuredLevel string) error {
	level := logLevel
	if level == "" || level == "INFO" {
		if configuredLevel != "" {
			level = configuredLevel
		}
	}

	cfg := logging.Config{Level: logging.ParseLevel(level), Pretty: true}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		cfg.Output = f
		cfg.Pretty = false
	}
	logging.Init(cfg)
	return nil
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}
