package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/arepl"
	"github.com/aretw0/arepl/internal/logging"
	"github.com/aretw0/arepl/pkg/domain"
	"github.com/aretw0/arepl/pkg/ports"
	"github.com/aretw0/arepl/pkg/render"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// PreviewURI is the resource holding the rendered preview document.
const PreviewURI = "arepl://preview"

// ErrNoDocument is returned when no live session matches the request.
var ErrNoDocument = errors.New("no document is being evaluated")

// StateResponse is the structured output of render_state.
type StateResponse struct {
	Document domain.DocumentID `json:"document" jsonschema_description:"Path of the evaluated document"`
	Timing   string            `json:"timing" jsonschema_description:"none, improvement or regression against the previous run"`
	State    render.State      `json:"state" jsonschema_description:"Variables, printed output and error of the latest run"`
	Rendered string            `json:"rendered" jsonschema_description:"The preview document as last published"`
}

// DocumentArgs selects a document; empty means the first live one.
type DocumentArgs struct {
	Document string `json:"document,omitempty"`
}

// Server exposes the live previews as an MCP Server.
type Server struct {
	sessions  ports.PreviewSource
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP Server instance.
func NewServer(sessions ports.PreviewSource, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		sessions: sessions,
		logger:   logger,
		mcpServer: server.NewMCPServer("arepl-mcp", strings.TrimSpace(arepl.Version),
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server, for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) lookup(document string) (domain.DocumentID, ports.Preview, error) {
	doc := domain.DocumentID(document)
	if doc == "" {
		docs := s.sessions.List()
		if len(docs) == 0 {
			return "", nil, ErrNoDocument
		}
		doc = docs[0]
	}
	p, ok := s.sessions.Get(doc)
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrNoDocument, doc)
	}
	return doc, p, nil
}

func (s *Server) registerTools() {
	// TOOL: render_state
	renderTool := mcp.NewTool("render_state",
		mcp.WithDescription("Return the latest evaluation state and rendered preview of a live document."),
		mcp.WithString("document", mcp.Description("Path of the document (optional, defaults to the first live document)")),
		mcp.WithOutputSchema[StateResponse](),
	)
	s.mcpServer.AddTool(renderTool, mcp.NewStructuredToolHandler(s.handleRenderState))

	// TOOL: run_now
	runTool := mcp.NewTool("run_now",
		mcp.WithDescription("Evaluate the whole document immediately, bypassing the edit delay."),
		mcp.WithString("document", mcp.Description("Path of the document (optional, defaults to the first live document)")),
	)
	s.mcpServer.AddTool(runTool, mcp.NewTypedToolHandler(s.handleRunNow))

	// TOOL: list_documents
	s.mcpServer.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List the documents being evaluated."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		docs := s.sessions.List()
		lines := make([]string, len(docs))
		for i, d := range docs {
			lines[i] = string(d)
		}
		return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
	})
}

func (s *Server) handleRenderState(ctx context.Context, request mcp.CallToolRequest, args DocumentArgs) (StateResponse, error) {
	doc, p, err := s.lookup(args.Document)
	if err != nil {
		return StateResponse{}, err
	}
	state := p.Snapshot()
	return StateResponse{
		Document: doc,
		Timing:   state.Timing().String(),
		State:    state,
		Rendered: p.Document(),
	}, nil
}

func (s *Server) handleRunNow(ctx context.Context, request mcp.CallToolRequest, args DocumentArgs) (*mcp.CallToolResult, error) {
	doc, p, err := s.lookup(args.Document)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := p.RunNow(); err != nil {
		s.logger.Warn("MCP RunNow failed", "document", doc, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("run failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("evaluation of %s requested", doc)), nil
}

func (s *Server) registerResources() {
	// EXPOSE: arepl://preview
	s.mcpServer.AddResource(mcp.NewResource(PreviewURI, "Live Preview",
		mcp.WithResourceDescription("The rendered preview of the first live document"),
		mcp.WithMIMEType("text/html"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		_, p, err := s.lookup("")
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      PreviewURI,
				MIMEType: "text/html",
				Text:     p.Document(),
			},
		}, nil
	})
}
