// Package file turns writes to a file on disk into the edit stream of a
// session, for hosts without an editor integration.
package file

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/arepl/internal/logging"
	"github.com/aretw0/arepl/pkg/domain"
	"github.com/fsnotify/fsnotify"
)

// Watcher emits an EditSave event with the full text every time the watched
// file's content changes on disk.
type Watcher struct {
	path   string
	logger *slog.Logger
	buffer int
	settle time.Duration
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger configures the logger for watch errors.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithSettle sets how long the file must stay quiet before it is read.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) {
		w.settle = d
	}
}

// NewWatcher creates a Watcher for path.
func NewWatcher(path string, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	w := &Watcher{path: abs, logger: logging.NewNop(), buffer: 16, settle: 25 * time.Millisecond}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Document returns the ID sessions use for the watched file.
func (w *Watcher) Document() domain.DocumentID {
	return domain.DocumentID(w.path)
}

// Read returns the current content of the file.
func (w *Watcher) Read() (string, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Watch streams edit events until ctx is cancelled, then closes the channel.
// The directory is watched rather than the file so editors that save by
// renaming a temp file over it keep being followed.
func (w *Watcher) Watch(ctx context.Context) (<-chan domain.EditEvent, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	last, _ := w.Read()
	out := make(chan domain.EditEvent, w.buffer)
	go func() {
		defer close(out)
		defer fw.Close()

		// Writes arrive in bursts (truncate, write, chmod); read once they settle.
		settle := time.NewTimer(time.Hour)
		settle.Stop()
		defer settle.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				w.logger.Warn("File watch error", "path", w.path, "err", err)
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) == w.path && (ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
					settle.Reset(w.settle)
				}
			case <-settle.C:
				text, err := w.Read()
				if err != nil {
					w.logger.Debug("Skipping unreadable file", "path", w.path, "err", err)
					continue
				}
				if text == last {
					continue
				}
				last = text
				edit := domain.EditEvent{
					Document:  w.Document(),
					Kind:      domain.EditSave,
					Text:      text,
					EOL:       detectEOL(text),
					Timestamp: time.Now(),
				}
				select {
				case out <- edit:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func detectEOL(text string) domain.EOL {
	if strings.Contains(text, "\r\n") {
		return domain.EOLCRLF
	}
	return domain.EOLLF
}
