package domain

import (
	"fmt"
	"time"
)

// OutcomeKind tags the Outcome union.
type OutcomeKind int

const (
	OutcomePrint OutcomeKind = iota
	OutcomeResult
	OutcomeStderr
	OutcomeProcessError
	OutcomeExit
	OutcomeWarning
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomePrint:
		return "print"
	case OutcomeResult:
		return "result"
	case OutcomeStderr:
		return "stderr"
	case OutcomeProcessError:
		return "process_error"
	case OutcomeExit:
		return "exit"
	case OutcomeWarning:
		return "warning"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Variable is one rendered entry of the interpreter namespace.
type Variable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Variables keeps the order the interpreter reported them in.
type Variables []Variable

// Get returns the rendered value of name.
func (v Variables) Get(name string) (string, bool) {
	for _, entry := range v {
		if entry.Name == name {
			return entry.Value, true
		}
	}
	return "", false
}

// Merge returns v updated with other: existing names are replaced in place,
// new names are appended.
func (v Variables) Merge(other Variables) Variables {
	out := make(Variables, len(v), len(v)+len(other))
	copy(out, v)
	for _, entry := range other {
		replaced := false
		for i := range out {
			if out[i].Name == entry.Name {
				out[i].Value = entry.Value
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, entry)
		}
	}
	return out
}

// Result is the structured outcome of one evaluation.
type Result struct {
	Variables     Variables     `json:"variables"`
	Print         string        `json:"print,omitempty"`
	UserError     string        `json:"userError,omitempty"`
	InternalError string        `json:"internalError,omitempty"`
	Elapsed       time.Duration `json:"elapsed"`
	// Done is false for intermediate dumps sent while the run continues.
	Done   bool   `json:"done"`
	Caller string `json:"caller,omitempty"`
	Line   int    `json:"line,omitempty"`
}

// Outcome is everything the interpreter supervisor can report.
// Seq is the sequence number of the request the outcome belongs to.
type Outcome struct {
	Kind     OutcomeKind
	Seq      uint64
	Text     string
	Result   *Result
	ExitCode int
	Err      error
}

// Sticky reports whether the outcome concerns the process rather than a
// request, and therefore can never be stale.
func (o Outcome) Sticky() bool {
	switch o.Kind {
	case OutcomeProcessError, OutcomeExit, OutcomeWarning:
		return true
	default:
		return false
	}
}
