package cli

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"

	"github.com/aretw0/arepl/pkg/adapters/file"
	"github.com/aretw0/arepl/pkg/adapters/mcp"
	"github.com/aretw0/arepl/pkg/render"
	"github.com/aretw0/arepl/pkg/session"
)

// RunMCP watches a file and serves its preview to MCP clients only.
// Nothing is written to Stdout, which belongs to the stdio transport.
func RunMCP(opts Options, transport string) error {
	if transport != "stdio" && transport != "sse" {
		return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
	}

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	st, err := setupStack(sigCtx, opts, render.FormatHTML)
	if err != nil {
		return err
	}
	defer st.Close()
	logger := st.logger

	watcher, err := file.NewWatcher(opts.File, file.WithLogger(logger))
	if err != nil {
		return err
	}
	text, err := watcher.Read()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", opts.File, err)
	}
	edits, err := watcher.Watch(sigCtx)
	if err != nil {
		return err
	}

	manager := session.NewManager(st.host.Factory(nil, session.WithText(text)), session.WithManagerLogger(logger))
	defer manager.CloseAll()
	if _, err := manager.Open(sigCtx, watcher.Document(), edits); err != nil {
		return err
	}

	srv := mcp.NewServer(manager.Previews(), logger)
	switch transport {
	case "stdio":
		logger.Info("Starting MCP Server (Stdio)", "document", watcher.Document())
		return srv.ServeStdio()
	default:
		logger.Info("Starting MCP Server (SSE)", "port", opts.MCPPort, "document", watcher.Document())
		if err := srv.ServeSSE(sigCtx, opts.MCPPort); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			return err
		}
		logger.Info("MCP Server stopped gracefully")
		return nil
	}
}
