package main

import (
	"github.com/aretw0/arepl/internal/cli"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <file.py>",
	Short: "Evaluate a file every time it changes",
	Long: `Watches a Python file and evaluates it on every save. The preview is
printed to the terminal, or served to a browser with --http.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := baseOptions(cmd, args)
		opts.HTTPAddr, _ = cmd.Flags().GetString("http")
		opts.NoBanner, _ = cmd.Flags().GetBool("no-banner")
		if sse, _ := cmd.Flags().GetBool("mcp"); sse {
			opts.MCP = "sse"
		}
		opts.MCPPort, _ = cmd.Flags().GetInt("port")
		return cli.RunWatch(opts)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().String("http", "", "Serve the preview on this address (e.g. :8080)")
	watchCmd.Flags().Bool("mcp", false, "Also expose the preview to MCP clients over SSE")
	watchCmd.Flags().Int("port", 8081, "Port of the MCP SSE server")
	watchCmd.Flags().Bool("no-banner", false, "Do not print the banner")
}
