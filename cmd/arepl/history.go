package main

import (
	"github.com/aretw0/arepl/internal/cli"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history <file.py>",
	Short: "List the recorded runs of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := baseOptions(cmd, args)
		opts.Limit, _ = cmd.Flags().GetInt("limit")
		opts.JSON, _ = cmd.Flags().GetBool("json")
		return cli.RunHistory(opts)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntP("limit", "n", 20, "Number of runs to show (0 shows all)")
	historyCmd.Flags().Bool("json", false, "Print the runs as JSON")
}
