package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/arepl/pkg/config"
	"github.com/aretw0/arepl/pkg/domain"
	"github.com/aretw0/arepl/pkg/env"
	"github.com/aretw0/arepl/pkg/interpreter"
	"github.com/aretw0/arepl/pkg/observability"
	"github.com/aretw0/arepl/pkg/ports"
	"github.com/aretw0/arepl/pkg/render"
)

// Interpreter is the part of interpreter.Supervisor a session drives.
type Interpreter interface {
	Start(ctx context.Context) error
	Execute(req domain.EvaluationRequest) (uint64, error)
	Stop() error
	Restart(ctx context.Context, delay time.Duration) error
	Reconfigure(cfg interpreter.Config)
	Close() error
	Events() <-chan domain.Outcome
	Interrupted() int
}

var _ Interpreter = (*interpreter.Supervisor)(nil)

var _ ports.Preview = (*Orchestrator)(nil)

// RenderSink receives every completed render.
type RenderSink interface {
	RenderDocument(doc string)
}

// RenderSinkFunc adapts a function to RenderSink.
type RenderSinkFunc func(doc string)

func (f RenderSinkFunc) RenderDocument(doc string) {
	f(doc)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMetrics records evaluations, restarts and renders.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithJournal records every completed run.
func WithJournal(journal ports.RunJournal) Option {
	return func(o *Orchestrator) {
		o.journal = journal
	}
}

// WithEnvProvider sets where envFile variables are loaded from.
func WithEnvProvider(p *env.Provider) Option {
	return func(o *Orchestrator) {
		o.env = p
	}
}

// WithFormat selects the document markup. Defaults to HTML.
func WithFormat(format render.Format) Option {
	return func(o *Orchestrator) {
		o.format = format
	}
}

// WithText seeds the document text evaluated when the session starts.
func WithText(text string) Option {
	return func(o *Orchestrator) {
		o.text = text
	}
}

// WithFilePath sets the path reported to the interpreter. Defaults to the
// document ID; use "" for unsaved documents.
func WithFilePath(path string) Option {
	return func(o *Orchestrator) {
		o.filePath = path
	}
}

// WithResolver replaces config.ResolveInterpreter.
func WithResolver(resolve func(config.Settings) (string, error)) Option {
	return func(o *Orchestrator) {
		o.resolve = resolve
	}
}

// WithBackendScript overrides the embedded interpreter backend.
func WithBackendScript(path string) Option {
	return func(o *Orchestrator) {
		o.backendScript = path
	}
}

// WithFailureHandler is called from the session loop with every failure the
// session renders (spawn, configuration, restart). It must not block.
func WithFailureHandler(fn func(err error)) Option {
	return func(o *Orchestrator) {
		o.onFail = fn
	}
}
