// Package render keeps the last-known evaluation state and turns it into a
// document for the preview panel.
//
// The Renderer is mutated by a single owner (the session loop); Document is
// a pure function of a State snapshot and the static Options.
package render

import (
	"time"

	"github.com/aretw0/arepl/pkg/domain"
)

// Timing classifies the elapsed time of the latest run against the previous one.
type Timing int

const (
	TimingNone Timing = iota
	TimingImprovement
	TimingRegression
)

func (t Timing) String() string {
	switch t {
	case TimingImprovement:
		return "improvement"
	case TimingRegression:
		return "regression"
	default:
		return "none"
	}
}

// State is everything the document is rendered from.
type State struct {
	Error           string           `json:"error,omitempty"`
	Print           string           `json:"print,omitempty"`
	Notice          string           `json:"notice,omitempty"`
	Variables       domain.Variables `json:"variables,omitempty"`
	Elapsed         time.Duration    `json:"elapsed"`
	PreviousElapsed time.Duration    `json:"previousElapsed"`
	Runs            int              `json:"runs"`
	Crashed         bool             `json:"crashed"`
}

// Timing reports whether the latest run was slower than the one before it.
// The first run has no baseline and always counts as an improvement.
func (s State) Timing() Timing {
	switch {
	case s.Runs == 0:
		return TimingNone
	case s.Runs == 1:
		return TimingImprovement
	case s.Elapsed > s.PreviousElapsed:
		return TimingRegression
	default:
		return TimingImprovement
	}
}

// Empty reports whether nothing has been rendered yet.
func (s State) Empty() bool {
	return s.Runs == 0 && s.Error == "" && s.Print == "" && s.Notice == "" && len(s.Variables) == 0
}

func (s State) clone() State {
	out := s
	if s.Variables != nil {
		out.Variables = append(domain.Variables(nil), s.Variables...)
	}
	return out
}
