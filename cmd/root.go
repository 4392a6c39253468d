// Package cmd defines the sage command-line interface.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sagekit/sage/internal/log"
)

var logJSON bool

var rootCmd = &cobra.Command{
	Use:   "sage",
	Short: "sage — retrieval-augmented assistant server and evaluation harness",
	Long: `sage serves a retrieval-augmented chat API backed by PostgreSQL
vector memory, and evaluates model quality against JSON datasets.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger := log.New(log.Config{
			Level: logLevel(),
			JSON:  logJSON,
		})
		slog.SetDefault(logger)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit logs as JSON")
}

func logLevel() slog.Level {
	switch os.Getenv("SAGE_LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
