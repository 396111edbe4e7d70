package domain

import (
	"strings"
	"time"
)

// DocumentID identifies the document a session tracks (usually its path).
type DocumentID string

// EOL is the end-of-line style of a document snapshot.
type EOL string

const (
	EOLLF   EOL = "\n"
	EOLCRLF EOL = "\r\n"
)

// EditKind distinguishes the host notifications an EditEvent came from.
type EditKind int

const (
	EditChange EditKind = iota // onChange
	EditSave                   // onSave
	EditClose                  // onClose
)

func (k EditKind) String() string {
	switch k {
	case EditChange:
		return "change"
	case EditSave:
		return "save"
	case EditClose:
		return "close"
	default:
		return "unknown"
	}
}

// EditEvent is a full-text snapshot of the tracked document.
type EditEvent struct {
	Document  DocumentID `json:"document"`
	Kind      EditKind   `json:"kind"`
	Text      string     `json:"text"`
	EOL       EOL        `json:"eol"`
	Timestamp time.Time  `json:"timestamp"`
}

// NormalizedText returns the snapshot with line endings converted to "\n".
func (e EditEvent) NormalizedText() string {
	if e.EOL == EOLCRLF || strings.Contains(e.Text, "\r\n") {
		return strings.ReplaceAll(e.Text, "\r\n", "\n")
	}
	return e.Text
}
