package main

import (
	"time"

	"github.com/aretw0/arepl/internal/cli"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <file.py>",
	Short: "Evaluate a file once and print the result",
	Long:  `Evaluates a Python file a single time. The command fails when the file raises.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := baseOptions(cmd, args)
		opts.Timeout, _ = cmd.Flags().GetDuration("timeout")
		opts.JSON, _ = cmd.Flags().GetBool("json")
		return cli.RunOnce(opts)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Duration("timeout", time.Minute, "Give up when the evaluation takes longer (0 waits forever)")
	runCmd.Flags().Bool("json", false, "Print the evaluation state as JSON")
}
