package tui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/arepl/pkg/render"
	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// NewRenderer returns a function that renders markdown using glamour.
// The style follows the terminal background; plain output skips styling.
func NewRenderer(styled bool) func(string) (string, error) {
	opt := glamour.WithStandardStyle("notty")
	if styled {
		opt = glamour.WithAutoStyle()
	}
	r, err := glamour.NewTermRenderer(opt, glamour.WithWordWrap(0))
	if err != nil {
		return func(markdown string) (string, error) {
			return markdown, nil
		}
	}
	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Sink prints every rendered markdown document to a terminal, replacing
// the previous one when the output is interactive.
type Sink struct {
	mu     sync.Mutex
	out    *termenv.Output
	w      io.Writer
	tty    bool
	render func(string) (string, error)
}

// NewSink creates a terminal sink writing to w.
func NewSink(w io.Writer) *Sink {
	tty := IsTerminal(w)
	return &Sink{
		out:    termenv.NewOutput(w),
		w:      w,
		tty:    tty,
		render: NewRenderer(tty),
	}
}

// RenderDocument implements session.RenderSink.
func (s *Sink) RenderDocument(doc string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rendered, err := s.render(doc)
	if err != nil {
		rendered = doc
	}
	if s.tty {
		s.out.ClearScreen()
	}
	fmt.Fprint(s.w, rendered)
}

// StatusLine summarizes a state on one line: run count, elapsed time
// coloured by timing, and the error's last line when there is one.
func StatusLine(out *termenv.Output, state render.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %d", state.Runs)

	if state.Runs > 0 {
		elapsed := out.String(state.Elapsed.Round(time.Millisecond).String())
		switch state.Timing() {
		case render.TimingImprovement:
			elapsed = elapsed.Foreground(out.Color("#27ae60"))
		case render.TimingRegression:
			elapsed = elapsed.Foreground(out.Color("#c0392b"))
		}
		fmt.Fprintf(&b, " · %s", elapsed)
	}

	if state.Crashed {
		fmt.Fprintf(&b, " · %s", out.String("crashed").Bold().Foreground(out.Color("#c0392b")))
	} else if state.Error != "" {
		lines := strings.Split(strings.TrimSpace(state.Error), "\n")
		fmt.Fprintf(&b, " · %s", out.String(lines[len(lines)-1]).Foreground(out.Color("#c0392b")))
	}
	return b.String()
}
