package logging

import (
	"io"
	"log/slog"
	"os"
)

// Options selects the handler built by New.
type Options struct {
	Level slog.Level
	// JSON switches from the text handler to the JSON handler.
	JSON bool
	// Output defaults to stderr, keeping stdout free for rendered documents
	// and the MCP stdio transport.
	Output io.Writer
}

// New creates the application logger. The "error" key is shortened to "err"
// so both spellings used across the code end up in one field.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{
		Level: opts.Level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(out, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(out, handlerOpts))
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
