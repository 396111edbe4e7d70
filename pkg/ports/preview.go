package ports

import (
	"github.com/aretw0/arepl/pkg/domain"
	"github.com/aretw0/arepl/pkg/render"
)

// Preview is the read side of one live session, shared by the preview
// adapters (HTTP, MCP).
type Preview interface {
	// Document returns the last published document.
	Document() string
	// Snapshot returns the state the document was rendered from.
	Snapshot() render.State
	// Subscribe streams every published document until cancel is called or
	// the session ends.
	Subscribe() (<-chan string, func())
	// RunNow evaluates the whole document immediately.
	RunNow() error
}

// PreviewSource resolves documents to their previews.
type PreviewSource interface {
	Get(doc domain.DocumentID) (Preview, bool)
	// List returns the live documents, sorted.
	List() []domain.DocumentID
}
