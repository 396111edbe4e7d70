// Package evaluation turns document snapshots into evaluation requests.
//
// The Builder owns the save-point cache: the code above a "#$save" line is
// sent once and later runs resume from the interpreter's snapshot of it for
// as long as that prefix stays byte-identical.
package evaluation

import (
	"strings"
	"time"

	"github.com/aretw0/arepl/pkg/domain"
)

// Builder is not safe for concurrent use; the session loop owns it.
type Builder struct {
	showGlobalVars bool
	defaultImports []string
	restartDelay   time.Duration

	savedPrefix  string
	hasSavePoint bool
}

// Option configures a Builder.
type Option func(*Builder)

// WithShowGlobalVars sets the showGlobalVars flag of every request.
func WithShowGlobalVars(show bool) Option {
	return func(b *Builder) {
		b.showGlobalVars = show
	}
}

// WithDefaultImports lists modules imported into every fresh namespace.
func WithDefaultImports(imports []string) Option {
	return func(b *Builder) {
		b.defaultImports = append([]string(nil), imports...)
	}
}

// WithRestartDelay is the delay attached to requests in restart mode.
func WithRestartDelay(d time.Duration) Option {
	return func(b *Builder) {
		b.restartDelay = d
	}
}

// NewBuilder creates a Builder with an empty save-point cache.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// FullFile builds the request for evaluating the whole document.
func (b *Builder) FullFile(text, filePath string) domain.EvaluationRequest {
	lines := splitLines(TruncateAtEnd(normalize(text)))
	req := b.base(filePath, lines)

	save := markerLine(lines, domain.SaveMarker)
	if save < 0 {
		b.Invalidate()
		req.Code = strings.Join(lines, "\n")
		return req
	}

	prefix := strings.Join(lines[:save], "\n")
	req.Code = pad(save+1) + strings.Join(lines[save+1:], "\n")

	if b.hasSavePoint && prefix == b.savedPrefix {
		req.UsePreviousVariables = true
		req.UseSavePoint = true
		return req
	}

	b.savedPrefix = prefix
	b.hasSavePoint = true
	req.SavedCode = prefix
	return req
}

// Block builds the request for a selection or, when sel is a cursor, for
// the block around it. Block runs always build on the previous namespace.
func (b *Builder) Block(text string, sel Selection, filePath string) (domain.EvaluationRequest, error) {
	lines := splitLines(TruncateAtEnd(normalize(text)))

	start, end := sel.Start, sel.End
	if sel.IsCursor() {
		start, end = ResolveBlock(lines, sel.Start)
	}
	if start < 0 {
		start = 0
	}
	if end >= len(lines) {
		end = len(lines) - 1
	}
	if start > end || isBlank(lines[start:end+1]) {
		return domain.EvaluationRequest{}, domain.ErrEmptyBlock
	}

	req := b.base(filePath, lines)
	req.Code = pad(start) + strings.Join(lines[start:end+1], "\n")
	req.UsePreviousVariables = true
	return req, nil
}

// Invalidate forgets the cached save point. Call it whenever the
// interpreter may have lost its snapshot.
func (b *Builder) Invalidate() {
	b.savedPrefix = ""
	b.hasSavePoint = false
}

// HasSavePoint reports whether a save point is cached.
func (b *Builder) HasSavePoint() bool {
	return b.hasSavePoint
}

func (b *Builder) base(filePath string, lines []string) domain.EvaluationRequest {
	req := domain.EvaluationRequest{
		FilePath:       filePath,
		ShowGlobalVars: b.showGlobalVars,
		DefaultImports: b.defaultImports,
	}
	if markerLine(lines, domain.RestartMarker) >= 0 {
		req.RestartMode = true
		req.RestartDelay = b.restartDelay
	}
	return req
}

// TruncateAtEnd drops the end marker line and everything after it.
func TruncateAtEnd(text string) string {
	lines := splitLines(text)
	if i := markerLine(lines, domain.EndMarker); i >= 0 {
		return strings.Join(lines[:i], "\n")
	}
	return text
}

func normalize(text string) string {
	return strings.ReplaceAll(text, "\r\n", "\n")
}

func splitLines(text string) []string {
	return strings.Split(text, "\n")
}

// markerLine returns the first line holding only the directive (surrounding
// whitespace allowed), or -1.
func markerLine(lines []string, marker string) int {
	for i, line := range lines {
		if strings.TrimSpace(line) == marker {
			return i
		}
	}
	return -1
}

func pad(n int) string {
	return strings.Repeat("\n", n)
}
