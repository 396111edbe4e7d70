package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/arepl"
	"github.com/aretw0/arepl/pkg/adapters/memory"
	"github.com/aretw0/arepl/pkg/adapters/redis"
	"github.com/aretw0/arepl/pkg/adapters/sqlite"
	"github.com/aretw0/arepl/pkg/config"
	"github.com/aretw0/arepl/pkg/env"
	"github.com/aretw0/arepl/pkg/observability"
	"github.com/aretw0/arepl/pkg/ports"
	"github.com/aretw0/arepl/pkg/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// stack is everything a command builds before it opens a session.
type stack struct {
	settings config.Settings
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics
	journal  ports.RunJournal
	env      *env.Provider
	host     *arepl.Host
	closers  []func() error
}

// setupStack loads the settings and wires persistence, caching and metrics.
func setupStack(ctx context.Context, opts Options, format render.Format) (*stack, error) {
	s := &stack{logger: createLogger(opts)}

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	s.settings = settings

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.metrics = observability.NewMetrics(s.registry)

	if err := s.setupEnv(ctx, opts); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.setupJournal(opts); err != nil {
		s.Close()
		return nil, err
	}

	hostOpts := []arepl.Option{
		arepl.WithLogger(s.logger),
		arepl.WithMetrics(s.metrics),
		arepl.WithEnvProvider(s.env),
		arepl.WithFormat(format),
	}
	if s.journal != nil {
		hostOpts = append(hostOpts, arepl.WithJournal(s.journal))
	}
	s.host = arepl.NewHost(settings, hostOpts...)
	return s, nil
}

// setupEnv shares parsed env files through Redis when configured, so
// several arepl processes on one project parse each file once.
func (s *stack) setupEnv(ctx context.Context, opts Options) error {
	envOpts := []env.Option{
		env.WithTTL(s.settings.EnvCacheTTL),
		env.WithLogger(s.logger),
	}
	if opts.RedisURL == "" {
		s.env = env.NewProvider(memory.NewCache(), envOpts...)
		return nil
	}

	cache, err := redis.NewFromURL(opts.RedisURL)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, cache.Close)
	if err := cache.Client().Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	envOpts = append(envOpts, env.WithLocker(redis.NewLocker(cache.Client(), "arepl:")))
	s.env = env.NewProvider(cache, envOpts...)
	s.logger.Debug("Using redis env cache", "url", opts.RedisURL)
	return nil
}

func (s *stack) setupJournal(opts Options) error {
	if opts.JournalPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(opts.JournalPath), 0o755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}
	journal, err := sqlite.New(opts.JournalPath)
	if err != nil {
		return err
	}
	s.journal = journal
	s.closers = append(s.closers, journal.Close)
	return nil
}

// Close releases the stack's connections.
func (s *stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// documentPath resolves the file a command works on to the ID its sessions use.
func documentPath(file string) (string, error) {
	if file == "" {
		return "", fmt.Errorf("no file given")
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", file, err)
	}
	return abs, nil
}
