package session

import (
	"log/slog"
	"sync"
)

// broadcaster fans completed renders out to subscribers. Slow subscribers
// lose messages instead of blocking the loop.
type broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan string]struct{}
	closed      bool
	logger      *slog.Logger
}

func newBroadcaster(logger *slog.Logger) *broadcaster {
	return &broadcaster{
		subscribers: make(map[chan string]struct{}),
		logger:      logger,
	}
}

func (b *broadcaster) Subscribe() (<-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan string, 10)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subscribers[ch] = struct{}{}

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
	}
}

func (b *broadcaster) Broadcast(msg string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
			b.logger.Warn("Subscriber buffer full, dropping render")
		}
	}
}

// Close ends every subscription.
func (b *broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = map[chan string]struct{}{}
}
