package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/elaiviaien/smaug/config"
	"github.com/elaiviaien/smaug/internal/logging"
)

var (
	logLevel string
	logJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "smaug",
	Short: "Host and process resource monitor",
	Long: `Smaug samples CPU, memory, swap, disk and thread usage while a program runs
and keeps a bounded history of every metric for averages and diffs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Init(logLevel, logJSON); err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultLogLevel,
		"Log level. One of debug, info, warn, error.")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false,
		"Write logs as JSON")

	rootCmd.AddCommand(watchCmd, versionCmd)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
