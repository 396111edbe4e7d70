package render

import (
	"fmt"
	"strings"

	"github.com/aretw0/arepl/pkg/domain"
)

// Renderer applies interpreter outcomes to a State.
// It is not safe for concurrent use.
type Renderer struct {
	opts  Options
	state State

	latest    uint64
	printSeq  uint64
	stderrSeq uint64
	stderr    string
}

// NewRenderer returns a Renderer with an empty state.
func NewRenderer(opts Options) *Renderer {
	return &Renderer{opts: opts.withDefaults()}
}

// SetOptions replaces the static rendering configuration.
func (r *Renderer) SetOptions(opts Options) {
	r.opts = opts.withDefaults()
}

// Options returns the rendering configuration in use.
func (r *Renderer) Options() Options {
	return r.opts
}

// Accept marks seq as the latest request. Outcomes of older requests are
// dropped from now on.
func (r *Renderer) Accept(seq uint64) {
	if seq > r.latest {
		r.latest = seq
	}
}

// Latest returns the latest accepted sequence number.
func (r *Renderer) Latest() uint64 {
	return r.latest
}

// Apply routes an outcome to the matching handler. changed is false when
// the outcome was stale; force asks the caller to bypass the render throttle.
func (r *Renderer) Apply(o domain.Outcome) (changed, force bool) {
	if !o.Sticky() && o.Seq < r.latest {
		return false, false
	}

	switch o.Kind {
	case domain.OutcomePrint:
		r.OnPrint(o.Seq, o.Text)
	case domain.OutcomeResult:
		if o.Result == nil {
			return false, false
		}
		r.OnResult(o.Seq, *o.Result)
	case domain.OutcomeStderr:
		r.onStderr(o.Seq, o.Text)
	case domain.OutcomeProcessError:
		r.OnError(fmt.Sprintf("Error in the interpreter process: %v", o.Err), true)
	case domain.OutcomeExit:
		r.onExit(o)
		return true, true
	case domain.OutcomeWarning:
		r.OnNotice(o.Text)
	default:
		return false, false
	}
	return true, o.Kind == domain.OutcomeProcessError
}

// OnResult stores the outcome of request seq. Final results replace the
// variables, timing and error; intermediate dumps only merge variables.
func (r *Renderer) OnResult(seq uint64, res domain.Result) {
	if !res.Done {
		r.state.Variables = r.state.Variables.Merge(res.Variables)
		return
	}

	r.state.Variables = res.Variables
	if r.printSeq != seq {
		r.state.Print = res.Print
		r.printSeq = seq
	} else if res.Print != "" {
		r.state.Print += res.Print
	}

	var errText []string
	if r.stderrSeq == seq && r.stderr != "" {
		errText = append(errText, strings.TrimRight(r.stderr, "\n"))
	}
	if res.InternalError != "" {
		errText = append(errText, res.InternalError)
	}
	if res.UserError != "" {
		errText = append(errText, res.UserError)
	}
	r.state.Error = strings.Join(errText, "\n")
	r.state.Crashed = false

	r.state.PreviousElapsed = r.state.Elapsed
	r.state.Elapsed = res.Elapsed
	r.state.Runs++
}

// OnError stores text as the current error. force is returned unchanged so
// callers can pass it on to the throttle.
func (r *Renderer) OnError(text string, force bool) bool {
	r.state.Error = text
	return force
}

// OnPrint appends to the print buffer of seq; the first chunk of a newer
// request replaces the buffer.
func (r *Renderer) OnPrint(seq uint64, text string) {
	if r.printSeq != seq {
		r.state.Print = ""
		r.printSeq = seq
	}
	r.state.Print += text
}

// OnNotice replaces the notice line. An empty text clears it.
func (r *Renderer) OnNotice(text string) {
	r.state.Notice = text
}

func (r *Renderer) onStderr(seq uint64, text string) {
	if r.stderrSeq != seq {
		r.stderr = ""
		r.stderrSeq = seq
	}
	r.stderr += text
	r.state.Error = strings.TrimRight(r.stderr, "\n")
}

func (r *Renderer) onExit(o domain.Outcome) {
	msg := fmt.Sprintf("The interpreter exited unexpectedly (exit code %d). It will restart on the next edit.", o.ExitCode)
	if r.stderrSeq == o.Seq && r.stderr != "" {
		msg += "\n\n" + strings.TrimRight(r.stderr, "\n")
	}
	r.state.Error = msg
	r.state.Crashed = true
}

// Render builds the document for the current state.
func (r *Renderer) Render() string {
	return Document(r.state, r.opts)
}

// Snapshot returns a copy of the current state.
func (r *Renderer) Snapshot() State {
	return r.state.clone()
}
