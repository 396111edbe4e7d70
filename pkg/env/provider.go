// Package env loads the variables of a dotenv file for the interpreter
// process, caching the parsed result per file.
package env

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/arepl/internal/logging"
	"github.com/aretw0/arepl/pkg/domain"
	"github.com/aretw0/arepl/pkg/ports"
	"github.com/joho/godotenv"
)

// Operations name what a cache entry holds; the scope is the file.
const (
	OpParse = "env.parse"
)

// DefaultTTL bounds how long a parsed file is served without re-reading it.
const DefaultTTL = 30 * time.Second

// Provider resolves env files through a ports.Cache keyed by
// (operation, scope) with an explicit TTL and explicit invalidation.
type Provider struct {
	cache   ports.Cache
	locker  ports.DistributedLocker
	ttl     time.Duration
	logger  *slog.Logger
	lockTTL time.Duration
}

// Option configures a Provider.
type Option func(*Provider)

// WithTTL sets the cache lifetime of a parsed file.
func WithTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		p.ttl = ttl
	}
}

// WithLocker serializes cache fills across instances sharing the cache.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(p *Provider) {
		p.locker = locker
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// NewProvider creates a Provider on cache.
func NewProvider(cache ports.Cache, opts ...Option) *Provider {
	p := &Provider{
		cache:   cache,
		ttl:     DefaultTTL,
		logger:  logging.NewNop(),
		lockTTL: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Key builds the cache key of an operation on a scope.
func Key(op, scope string) string {
	return op + ":" + scope
}

// Variables returns the variables defined in path. A missing file yields no
// variables; an empty path yields nil.
func (p *Provider) Variables(ctx context.Context, path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	scope, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: env file %q: %v", domain.ErrConfiguration, path, err)
	}
	key := Key(OpParse, scope)

	if vars, ok := p.cached(ctx, key); ok {
		return vars, nil
	}

	if p.locker != nil {
		unlock, err := p.locker.Lock(ctx, key, p.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to lock env cache: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				p.logger.Warn("Failed to release env cache lock", "key", key, "err", err)
			}
		}()
		// Another instance may have filled it while we waited.
		if vars, ok := p.cached(ctx, key); ok {
			return vars, nil
		}
	}

	vars, err := parseFile(scope)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(vars)
	if err != nil {
		return nil, fmt.Errorf("failed to encode env cache entry: %w", err)
	}
	if err := p.cache.Set(ctx, key, data, p.ttl); err != nil {
		p.logger.Warn("Failed to cache env file", "path", scope, "err", err)
	}
	return vars, nil
}

// Environ returns base with the variables of path applied on top, sorted
// by name. File variables win over base.
func (p *Provider) Environ(ctx context.Context, path string, base []string) ([]string, error) {
	vars, err := p.Variables(ctx, path)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]string, len(base)+len(vars))
	for _, kv := range base {
		if name, value, ok := strings.Cut(kv, "="); ok {
			merged[name] = value
		}
	}
	for name, value := range vars {
		merged[name] = value
	}

	out := make([]string, 0, len(merged))
	for name, value := range merged {
		out = append(out, name+"="+value)
	}
	sort.Strings(out)
	return out, nil
}

// Invalidate drops every cached operation on path.
func (p *Provider) Invalidate(ctx context.Context, path string) error {
	scope, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	return p.cache.Delete(ctx, Key(OpParse, scope))
}

func (p *Provider) cached(ctx context.Context, key string) (map[string]string, bool) {
	data, err := p.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			p.logger.Warn("Env cache unavailable, reading file", "key", key, "err", err)
		}
		return nil, false
	}
	var vars map[string]string
	if err := json.Unmarshal(data, &vars); err != nil {
		p.logger.Warn("Discarding corrupt env cache entry", "key", key, "err", err)
		return nil, false
	}
	return vars, true
}

func parseFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("%w: failed to read env file: %v", domain.ErrConfiguration, err)
	}
	vars, err := godotenv.Unmarshal(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse env file %s: %v", domain.ErrConfiguration, path, err)
	}
	return vars, nil
}
