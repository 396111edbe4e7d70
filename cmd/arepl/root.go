package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/aretw0/arepl/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "arepl",
	Short: "arepl evaluates Python files as you type",
	Long: `arepl runs a Python file every time it changes and shows the variables,
printed output and errors of the latest run in the terminal or a browser.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, cli.ErrEvaluationFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "arepl.yaml", "Settings file (YAML or JSON)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging on stderr")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Write logs as JSON")
	rootCmd.PersistentFlags().String("redis-url", os.Getenv("AREPL_REDIS_URL"), "Share the env-file cache through Redis")
	rootCmd.PersistentFlags().String("journal", cli.DefaultJournalPath, "SQLite run journal (empty disables it)")
}

// baseOptions reads the persistent flags shared by every command.
func baseOptions(cmd *cobra.Command, args []string) cli.Options {
	flags := cmd.Flags()
	opts := cli.Options{}
	opts.ConfigPath, _ = flags.GetString("config")
	opts.Debug, _ = flags.GetBool("debug")
	opts.JSONLogs, _ = flags.GetBool("json-logs")
	opts.RedisURL, _ = flags.GetString("redis-url")
	opts.JournalPath, _ = flags.GetString("journal")
	if len(args) > 0 {
		opts.File = args[0]
	}
	return opts
}
