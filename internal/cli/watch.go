package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	nethttp "net/http"
	"sync/atomic"
	"time"

	"github.com/aretw0/arepl"
	"github.com/aretw0/arepl/internal/presentation/tui"
	"github.com/aretw0/arepl/pkg/adapters/file"
	"github.com/aretw0/arepl/pkg/adapters/http"
	"github.com/aretw0/arepl/pkg/adapters/mcp"
	"github.com/aretw0/arepl/pkg/domain"
	"github.com/aretw0/arepl/pkg/render"
	"github.com/aretw0/arepl/pkg/session"
	"github.com/muesli/termenv"
)

// RunWatch evaluates a file every time it is saved, until interrupted.
// The preview goes to the terminal, and to the HTTP and MCP servers when
// they are enabled.
func RunWatch(opts Options) error {
	out := opts.stdout()
	if !opts.NoBanner && tui.IsTerminal(out) {
		tui.PrintBanner(out, arepl.Version)
	}

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	// The browser preview needs HTML; the terminal then only shows a status line.
	format := render.FormatMarkdown
	if opts.HTTPAddr != "" {
		format = render.FormatHTML
	}
	st, err := setupStack(sigCtx, opts, format)
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

	var current atomic.Pointer[session.Orchestrator]
	var sink session.RenderSink = tui.NewSink(out)
	if format == render.FormatHTML {
		status := termenv.NewOutput(out)
		sink = session.RenderSinkFunc(func(string) {
			if o := current.Load(); o != nil {
				fmt.Fprintln(out, tui.StatusLine(status, o.Snapshot()))
			}
		})
	}

	manager := session.NewManager(st.host.Factory(func(domain.DocumentID) session.RenderSink {
		return sink
	}, session.WithText(text)), session.WithManagerLogger(logger))
	defer manager.CloseAll()

	o, err := manager.Open(sigCtx, watcher.Document(), edits)
	if err != nil {
		return err
	}
	current.Store(o)
	logger.Info("Watching", "path", watcher.Document(), "when", st.settings.WhenToExecute)
	printSystemMessage(out, "Watching '%s'.", watcher.Document())

	serverErrs := make(chan error, 2)
	if opts.HTTPAddr != "" {
		go func() {
			serverErrs <- servePreview(sigCtx, opts.HTTPAddr, manager, st, logger)
		}()
		printSystemMessage(out, "Preview at http://%s/", displayAddr(opts.HTTPAddr))
	}
	if opts.MCP == "sse" {
		srv := mcp.NewServer(manager.Previews(), logger)
		go func() {
			serverErrs <- srv.ServeSSE(sigCtx, opts.MCPPort)
		}()
	}

	select {
	case <-sigCtx.Done():
		logger.Info("Stopping watcher (signal received)", "signal", sigCtx.Signal())
	case <-o.Done():
		logger.Info("Session ended")
	case err := <-serverErrs:
		if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			return err
		}
	}
	printSystemMessage(out, "Stopped watching '%s'.", watcher.Document())
	return nil
}

// servePreview runs the HTTP preview until ctx is done.
func servePreview(ctx context.Context, addr string, manager *session.Manager, st *stack, logger *slog.Logger) error {
	srv := &nethttp.Server{
		Addr: addr,
		Handler: http.NewHandler(manager.Previews(),
			http.WithGatherer(st.registry),
			http.WithLogger(logger),
		),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Preview server listening", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop preview server gracefully: %w", err)
		}
		return nil
	}
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
