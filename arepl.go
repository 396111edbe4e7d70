package arepl

import (
	"log/slog"

	"github.com/aretw0/arepl/internal/logging"
	"github.com/aretw0/arepl/pkg/config"
	"github.com/aretw0/arepl/pkg/domain"
	"github.com/aretw0/arepl/pkg/env"
	"github.com/aretw0/arepl/pkg/interpreter"
	"github.com/aretw0/arepl/pkg/observability"
	"github.com/aretw0/arepl/pkg/ports"
	"github.com/aretw0/arepl/pkg/render"
	"github.com/aretw0/arepl/pkg/session"
)

// Host holds what every session of a process shares: settings, the env-file
// provider, metrics, the run journal and the logger.
type Host struct {
	settings config.Settings
	logger   *slog.Logger
	metrics  *observability.Metrics
	journal  ports.RunJournal
	env      *env.Provider
	format   render.Format
	extra    []session.Option
}

// Option defines a functional option for configuring the Host.
type Option func(*Host)

// WithLogger configures the logger handed to sessions and interpreters.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) {
		h.logger = logger
	}
}

// WithMetrics records evaluation, restart and render metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(h *Host) {
		h.metrics = m
	}
}

// WithJournal records every completed run.
func WithJournal(journal ports.RunJournal) Option {
	return func(h *Host) {
		h.journal = journal
	}
}

// WithEnvProvider shares one env-file provider (and its cache) across sessions.
func WithEnvProvider(p *env.Provider) Option {
	return func(h *Host) {
		h.env = p
	}
}

// WithFormat selects the document markup of every session.
func WithFormat(format render.Format) Option {
	return func(h *Host) {
		h.format = format
	}
}

// WithSessionOptions appends raw session options to every session.
func WithSessionOptions(opts ...session.Option) Option {
	return func(h *Host) {
		h.extra = append(h.extra, opts...)
	}
}

// NewHost creates a Host for the given settings.
func NewHost(settings config.Settings, opts ...Option) *Host {
	h := &Host{
		settings: settings,
		logger:   logging.NewNop(),
		format:   render.FormatHTML,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Settings returns the settings new sessions start with.
func (h *Host) Settings() config.Settings {
	return h.settings
}

// NewSession wires a supervised interpreter to a new Orchestrator for doc.
// The interpreter is configured from the settings when the session starts.
func (h *Host) NewSession(doc domain.DocumentID, sink session.RenderSink, opts ...session.Option) *session.Orchestrator {
	supervisor := interpreter.NewSupervisor(interpreter.Config{},
		interpreter.WithLogger(h.logger.With("document", string(doc))),
		interpreter.WithMetrics(h.metrics),
	)

	all := []session.Option{
		session.WithLogger(h.logger),
		session.WithMetrics(h.metrics),
		session.WithFormat(h.format),
	}
	if h.journal != nil {
		all = append(all, session.WithJournal(h.journal))
	}
	if h.env != nil {
		all = append(all, session.WithEnvProvider(h.env))
	}
	all = append(all, h.extra...)
	all = append(all, opts...)
	return session.New(doc, h.settings, supervisor, sink, all...)
}

// Factory adapts NewSession to session.Manager, choosing a sink per document.
func (h *Host) Factory(sinkFor func(doc domain.DocumentID) session.RenderSink, opts ...session.Option) session.Factory {
	return func(doc domain.DocumentID) (*session.Orchestrator, error) {
		var sink session.RenderSink
		if sinkFor != nil {
			sink = sinkFor(doc)
		}
		return h.NewSession(doc, sink, opts...), nil
	}
}
