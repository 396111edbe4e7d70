package interpreter

import (
	"log/slog"
	"time"

	"github.com/aretw0/arepl/internal/logging"
	"github.com/aretw0/arepl/pkg/observability"
)

// DefaultStopGrace is how long a stopping interpreter gets after the
// interrupt before it is killed.
const DefaultStopGrace = 2 * time.Second

// Config describes how to launch the interpreter.
type Config struct {
	// PythonPath is the interpreter binary.
	PythonPath string
	// Options are passed before the backend script (e.g. "-u", "-X", "utf8").
	Options []string
	// Env is appended to the supervisor's environment.
	Env []string
	// WorkDir is the working directory of the process.
	WorkDir string
	// BackendScript overrides the embedded backend.
	BackendScript string
	// StopGrace bounds a graceful stop. Zero means DefaultStopGrace.
	StopGrace time.Duration
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// WithMetrics records restarts, interrupted runs and protocol errors.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Supervisor) {
		s.metrics = m
	}
}

// WithEventBuffer sets the capacity of the outcome channel.
func WithEventBuffer(n int) Option {
	return func(s *Supervisor) {
		s.bufferSize = n
	}
}

// WithoutVersionCheck skips `python --version` before the first start.
func WithoutVersionCheck() Option {
	return func(s *Supervisor) {
		s.versionChecked = true
	}
}

func defaultLogger() *slog.Logger {
	return logging.NewNop()
}
