package main

import (
	"github.com/aretw0/arepl/internal/cli"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp <file.py>",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Watches a Python file and exposes its live evaluation as an MCP Server.
This allows AI agents to read the latest variables and errors and to trigger runs.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := baseOptions(cmd, args)
		opts.MCPPort, _ = cmd.Flags().GetInt("port")
		transport, _ := cmd.Flags().GetString("transport")
		return cli.RunMCP(opts, transport)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8081, "Port to listen on (only for SSE)")
}
