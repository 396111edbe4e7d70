package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/arepl/internal/logging"
	"github.com/aretw0/arepl/pkg/domain"
	"github.com/aretw0/arepl/pkg/ports"
)

// Factory builds a fresh, unstarted Orchestrator for a document.
type Factory func(doc domain.DocumentID) (*Orchestrator, error)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager keeps one Orchestrator per document.
// It uses reference counting to garbage collect unused per-document locks.
type Manager struct {
	factory Factory

	mu       sync.Mutex
	locks    map[domain.DocumentID]*lockEntry
	sessions map[domain.DocumentID]*Orchestrator

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithLocker serializes Open and Close across processes sharing the locker.
func WithLocker(locker ports.DistributedLocker) ManagerOption {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithManagerLogger configures a logger for the Manager.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager that builds sessions with factory.
func NewManager(factory Factory, opts ...ManagerOption) *Manager {
	m := &Manager{
		factory:  factory,
		locks:    make(map[domain.DocumentID]*lockEntry),
		sessions: make(map[domain.DocumentID]*Orchestrator),
		lockTTL:  30 * time.Second,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(doc) after unlocking.
func (m *Manager) acquire(doc domain.DocumentID) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[doc]
	if !exists {
		entry = &lockEntry{}
		m.locks[doc] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(doc domain.DocumentID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[doc]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, doc)
	}
}

// Open returns the running session for doc, starting one fed by edits when
// there is none.
func (m *Manager) Open(ctx context.Context, doc domain.DocumentID, edits <-chan domain.EditEvent) (*Orchestrator, error) {
	var o *Orchestrator
	err := m.WithLock(ctx, doc, func(ctx context.Context) error {
		if existing, ok := m.Get(doc); ok {
			o = existing
			return nil
		}

		created, err := m.factory(doc)
		if err != nil {
			return fmt.Errorf("failed to create session for %s: %w", doc, err)
		}
		if err := created.Start(ctx, edits); err != nil {
			return fmt.Errorf("failed to start session for %s: %w", doc, err)
		}

		m.mu.Lock()
		m.sessions[doc] = created
		m.mu.Unlock()
		go m.forget(doc, created)

		m.logger.Debug("session opened", "document", doc)
		o = created
		return nil
	})
	return o, err
}

// forget drops the session from the registry once it has stopped.
func (m *Manager) forget(doc domain.DocumentID, o *Orchestrator) {
	<-o.Done()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[doc] == o {
		delete(m.sessions, doc)
	}
}

// Get returns the live session for doc.
func (m *Manager) Get(doc domain.DocumentID) (*Orchestrator, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.sessions[doc]
	if !ok {
		return nil, false
	}
	select {
	case <-o.Done():
		return nil, false
	default:
		return o, true
	}
}

// List returns the documents with a live session, sorted.
func (m *Manager) List() []domain.DocumentID {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := make([]domain.DocumentID, 0, len(m.sessions))
	for doc, o := range m.sessions {
		select {
		case <-o.Done():
			continue
		default:
		}
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i] < docs[j] })
	return docs
}

// Close stops the session for doc. Closing an unknown document is a no-op.
func (m *Manager) Close(ctx context.Context, doc domain.DocumentID) error {
	return m.WithLock(ctx, doc, func(ctx context.Context) error {
		m.mu.Lock()
		o, ok := m.sessions[doc]
		delete(m.sessions, doc)
		m.mu.Unlock()
		if !ok {
			return nil
		}
		return o.Stop()
	})
}

// CloseAll stops every session.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	all := make([]*Orchestrator, 0, len(m.sessions))
	for doc, o := range m.sessions {
		all = append(all, o)
		delete(m.sessions, doc)
	}
	m.mu.Unlock()

	var errs []error
	for _, o := range all {
		if err := o.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithLock executes a function while holding the lock for the document.
func (m *Manager) WithLock(ctx context.Context, doc domain.DocumentID, fn func(context.Context) error) error {
	entry := m.acquire(doc)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(doc)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, string(doc), m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"document", doc,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Previews exposes the live sessions to the preview adapters.
func (m *Manager) Previews() ports.PreviewSource {
	return previews{m: m}
}

type previews struct {
	m *Manager
}

func (p previews) Get(doc domain.DocumentID) (ports.Preview, bool) {
	o, ok := p.m.Get(doc)
	if !ok {
		return nil, false
	}
	return o, true
}

func (p previews) List() []domain.DocumentID {
	return p.m.List()
}
