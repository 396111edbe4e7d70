package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/arepl/internal/logging"
	"github.com/aretw0/arepl/pkg/adapters/memory"
	"github.com/aretw0/arepl/pkg/config"
	"github.com/aretw0/arepl/pkg/domain"
	"github.com/aretw0/arepl/pkg/env"
	"github.com/aretw0/arepl/pkg/evaluation"
	"github.com/aretw0/arepl/pkg/interpreter"
	"github.com/aretw0/arepl/pkg/observability"
	"github.com/aretw0/arepl/pkg/ports"
	"github.com/aretw0/arepl/pkg/ratelimit"
	"github.com/aretw0/arepl/pkg/render"
)

// Orchestrator runs the live evaluation of one document.
type Orchestrator struct {
	doc           domain.DocumentID
	interp        Interpreter
	sink          RenderSink
	logger        *slog.Logger
	metrics       *observability.Metrics
	journal       ports.RunJournal
	env           *env.Provider
	format        render.Format
	resolve       func(config.Settings) (string, error)
	backendScript string
	onFail        func(error)

	// Owned by the loop goroutine.
	settings     config.Settings
	text         string
	filePath     string
	builder      *evaluation.Builder
	renderer     *render.Renderer
	debouncer    *ratelimit.Debouncer[domain.EditEvent]
	throttler    *ratelimit.Throttler[struct{}]
	ctx          context.Context
	needsStart   bool
	fresh        bool
	restarting   bool
	restartAgain bool
	queued       func() (domain.EvaluationRequest, error)
	savePointSeq uint64
	started      map[uint64]time.Time
	forceNext    bool

	cmds         chan func()
	renderTick   chan struct{}
	debounceTick chan struct{}
	stopCh       chan struct{}
	stopOnce     sync.Once
	done         chan struct{}
	doneOnce     sync.Once
	streams      *broadcaster

	mu        sync.Mutex
	state     State
	closed    bool
	published string
	snapshot  render.State
}

// New creates an Orchestrator for doc. Nothing runs until Start.
func New(doc domain.DocumentID, settings config.Settings, interp Interpreter, sink RenderSink, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		doc:          doc,
		interp:       interp,
		sink:         sink,
		logger:       logging.NewNop(),
		format:       render.FormatHTML,
		resolve:      config.ResolveInterpreter,
		settings:     settings,
		filePath:     string(doc),
		started:      make(map[uint64]time.Time),
		cmds:         make(chan func(), 64),
		renderTick:   make(chan struct{}, 1),
		debounceTick: make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.sink == nil {
		o.sink = RenderSinkFunc(func(string) {})
	}
	if o.env == nil {
		o.env = env.NewProvider(memory.NewCache(), env.WithTTL(settings.EnvCacheTTL), env.WithLogger(o.logger))
	}
	o.streams = newBroadcaster(o.logger)
	o.builder = newBuilder(settings)
	o.renderer = render.NewRenderer(settings.RenderOptions(o.format))
	o.debouncer = ratelimit.NewDebouncer(settings.Delay, func(ev domain.EditEvent) {
		select {
		case o.debounceTick <- struct{}{}:
		default:
		}
	})
	o.throttler = ratelimit.NewThrottler(settings.RenderInterval, func(struct{}) {
		select {
		case o.renderTick <- struct{}{}:
		default:
		}
	})
	o.snapshot = o.renderer.Snapshot()
	return o
}

func newBuilder(s config.Settings) *evaluation.Builder {
	return evaluation.NewBuilder(
		evaluation.WithShowGlobalVars(s.ShowGlobalVars),
		evaluation.WithDefaultImports(s.DefaultImports),
		evaluation.WithRestartDelay(s.RestartDelay),
	)
}

// Start spawns the interpreter and begins consuming edits. A spawn or
// configuration failure is rendered and retried on the next edit; it does
// not fail Start. The session ends when edits is closed, a Close event
// arrives, ctx is cancelled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context, edits <-chan domain.EditEvent) error {
	o.mu.Lock()
	switch {
	case o.closed:
		o.mu.Unlock()
		return domain.ErrSessionClosed
	case o.state != StateIdle:
		o.mu.Unlock()
		return domain.ErrAlreadyRunning
	case o.doc == "":
		o.mu.Unlock()
		return domain.ErrNoActiveEditor
	}
	o.state = StateStarting
	o.mu.Unlock()

	o.logger.Info("Session starting", "document", o.doc, "when", o.settings.WhenToExecute)
	o.ctx = ctx
	o.forceNext = true
	o.flushRender()

	if err := o.startInterpreter(); err != nil {
		o.fail(err)
	}
	o.setState(StateRunning)

	if strings.TrimSpace(o.text) != "" && o.settings.WhenToExecute != config.OnKeybinding {
		o.post(o.runFull)
	}

	go o.loop(ctx, edits)
	return nil
}

func (o *Orchestrator) loop(ctx context.Context, edits <-chan domain.EditEvent) {
	defer o.shutdown()
	events := o.interp.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case ev, ok := <-edits:
			if !ok {
				o.logger.Debug("Edit stream ended", "document", o.doc)
				return
			}
			if o.onEdit(ev) {
				return
			}
		case out := <-events:
			o.onOutcome(out)
		case fn := <-o.cmds:
			fn()
		case <-o.renderTick:
			o.flushRender()
		case <-o.debounceTick:
			o.runFull()
		}
	}
}

// post queues fn for the loop. It gives up once the session is done.
func (o *Orchestrator) post(fn func()) {
	select {
	case o.cmds <- fn:
	case <-o.done:
	}
}

// call runs fn on the loop and waits for its result.
func (o *Orchestrator) call(fn func() error) error {
	o.mu.Lock()
	closed, state := o.closed, o.state
	o.mu.Unlock()
	if closed {
		return domain.ErrSessionClosed
	}
	if state == StateIdle {
		return domain.ErrNotRunning
	}

	reply := make(chan error, 1)
	select {
	case o.cmds <- func() { reply <- fn() }:
	case <-o.done:
		return domain.ErrSessionClosed
	}
	select {
	case err := <-reply:
		return err
	case <-o.done:
		return domain.ErrSessionClosed
	}
}

// onEdit reports whether the session has to stop.
func (o *Orchestrator) onEdit(ev domain.EditEvent) bool {
	if ev.Document != "" && ev.Document != o.doc {
		return false
	}

	switch ev.Kind {
	case domain.EditClose:
		o.logger.Info("Document closed", "document", o.doc)
		return true

	case domain.EditChange:
		o.text = ev.NormalizedText()
		if o.settings.WhenToExecute == config.AfterDelay {
			o.schedule(ev)
		}

	case domain.EditSave:
		if ev.Text != "" {
			o.text = ev.NormalizedText()
		}
		switch o.settings.WhenToExecute {
		case config.OnSave:
			o.debouncer.Cancel()
			o.runFull()
		case config.AfterDelay:
			// A save cuts a pending delay short.
			if !o.debouncer.Flush() {
				o.schedule(ev)
			}
		}
	}
	return false
}

func (o *Orchestrator) schedule(ev domain.EditEvent) {
	if o.settings.Delay <= 0 {
		o.runFull()
		return
	}
	o.debouncer.Call(ev)
}

func (o *Orchestrator) runFull() {
	if err := o.dispatch(func() (domain.EvaluationRequest, error) {
		return o.builder.FullFile(o.text, o.filePath), nil
	}); err != nil {
		o.fail(err)
	}
}

// dispatch builds and sends one request, starting or restarting the
// interpreter first when needed.
func (o *Orchestrator) dispatch(build func() (domain.EvaluationRequest, error)) error {
	if o.restarting {
		o.queued = build
		return nil
	}
	if o.needsStart {
		if err := o.startInterpreter(); err != nil {
			return err
		}
	}

	req, err := build()
	if err != nil {
		return err
	}
	if req.RestartMode && !o.fresh {
		o.queued = build
		o.restart("restart_mode", req.RestartDelay)
		return nil
	}

	seq, err := o.interp.Execute(req)
	if errors.Is(err, domain.ErrNotRunning) {
		// The exit outcome may still be queued behind us.
		if err := o.startInterpreter(); err != nil {
			return err
		}
		if req, err = build(); err != nil {
			return err
		}
		seq, err = o.interp.Execute(req)
	}
	if err != nil {
		return err
	}

	o.fresh = false
	o.renderer.Accept(seq)
	o.started[seq] = time.Now()
	if req.SavedCode != "" {
		o.savePointSeq = seq
	}
	o.logger.Debug("Evaluation sent", "document", o.doc, "seq", seq, "save_point", req.UseSavePoint)
	return nil
}

func (o *Orchestrator) interpreterConfig() (interpreter.Config, error) {
	python, err := o.resolve(o.settings)
	if err != nil {
		return interpreter.Config{}, err
	}

	var environ []string
	if envFile := config.ResolveEnvFile(o.settings); envFile != "" {
		vars, err := o.env.Variables(o.ctx, envFile)
		if err != nil {
			return interpreter.Config{}, err
		}
		for name, value := range vars {
			environ = append(environ, name+"="+value)
		}
		sort.Strings(environ)
	}

	cfg := interpreter.Config{
		PythonPath:    python,
		Options:       o.settings.PythonOptions,
		Env:           environ,
		BackendScript: o.backendScript,
		StopGrace:     o.settings.StopGrace,
	}
	if o.filePath != "" {
		cfg.WorkDir = filepath.Dir(o.filePath)
	}
	return cfg, nil
}

func (o *Orchestrator) startInterpreter() error {
	cfg, err := o.interpreterConfig()
	if err != nil {
		o.needsStart = true
		return err
	}
	o.interp.Reconfigure(cfg)
	if err := o.interp.Start(o.ctx); err != nil {
		o.needsStart = true
		return err
	}
	o.needsStart = false
	o.fresh = true
	o.builder.Invalidate()
	o.clearStarted()
	o.setState(StateRunning)
	return nil
}

// restart replaces the interpreter process off the loop and resumes the
// queued request once it is back.
func (o *Orchestrator) restart(reason string, delay time.Duration) {
	if o.restarting {
		o.restartAgain = true
		return
	}
	cfg, err := o.interpreterConfig()
	if err != nil {
		o.needsStart = true
		o.fail(err)
		return
	}

	o.logger.Info("Restarting interpreter", "document", o.doc, "reason", reason, "delay", delay)
	o.setState(StateRestarting)
	o.restarting = true
	o.builder.Invalidate()
	o.interp.Reconfigure(cfg)
	o.metrics.Restarted(reason)

	ctx := o.ctx
	go func() {
		err := o.interp.Restart(ctx, delay)
		o.post(func() { o.restarted(err) })
	}()
}

func (o *Orchestrator) restarted(err error) {
	o.restarting = false
	o.clearStarted()
	if o.restartAgain {
		o.restartAgain = false
		o.restart("config", 0)
		return
	}
	if err != nil {
		o.needsStart = true
		o.fail(err)
	} else {
		o.needsStart = false
		o.fresh = true
		o.builder.Invalidate()
		o.setState(StateRunning)
	}

	if build := o.queued; build != nil {
		o.queued = nil
		if err := o.dispatch(build); err != nil {
			o.fail(err)
		}
	}
}

func (o *Orchestrator) onOutcome(out domain.Outcome) {
	switch out.Kind {
	case domain.OutcomeExit:
		if out.Seq < o.renderer.Latest() {
			// The process was already replaced by a request sent after the exit.
			o.logger.Debug("Ignoring exit of a replaced interpreter", "document", o.doc, "seq", out.Seq)
			return
		}
		o.logger.Warn("Interpreter crashed, restarting on next edit", "document", o.doc, "code", out.ExitCode)
		o.needsStart = true
		o.builder.Invalidate()
		o.clearStarted()
		o.setState(StateRestarting)

	case domain.OutcomeResult:
		if out.Result != nil && out.Result.Done {
			o.completed(out.Seq, *out.Result)
		}
	}

	changed, force := o.renderer.Apply(out)
	if changed {
		o.requestRender(force)
	}
}

func (o *Orchestrator) completed(seq uint64, res domain.Result) {
	failed := res.UserError != "" || res.InternalError != ""
	if seq == o.savePointSeq && failed {
		// The backend kept no snapshot of a failing prefix.
		o.builder.Invalidate()
	}
	o.metrics.Evaluated(res.Elapsed, failed)

	startedAt, ok := o.started[seq]
	// Requests replaced before they were written never complete.
	for pending := range o.started {
		if pending <= seq {
			delete(o.started, pending)
		}
	}
	if !ok {
		startedAt = time.Now().Add(-res.Elapsed)
	}
	if o.journal == nil {
		return
	}

	run := domain.RunRecord{
		Document:    o.doc,
		Seq:         seq,
		StartedAt:   startedAt,
		Elapsed:     res.Elapsed,
		Error:       summarize(res),
		Variables:   len(res.Variables),
		Interrupted: o.interp.Interrupted(),
	}
	if err := o.journal.Record(o.ctx, run); err != nil {
		o.logger.Warn("Failed to record run", "document", o.doc, "seq", seq, "err", err)
	}
}

// summarize keeps the exception line of an error, or its last line.
func summarize(res domain.Result) string {
	text := strings.TrimSpace(res.UserError)
	if text == "" {
		text = strings.TrimSpace(res.InternalError)
	}
	if text == "" {
		return ""
	}
	if lines := render.ExceptionLines(text); len(lines) > 0 {
		return lines[len(lines)-1]
	}
	lines := strings.Split(text, "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func (o *Orchestrator) clearStarted() {
	clear(o.started)
}

// fail turns err into a forced error render.
func (o *Orchestrator) fail(err error) {
	o.logger.Warn("Evaluation failed", "document", o.doc, "err", err)

	var msg string
	switch {
	case errors.Is(err, domain.ErrConfiguration):
		msg = fmt.Sprintf("Configuration error: %v", err)
	case errors.Is(err, domain.ErrSpawn):
		msg = fmt.Sprintf("Could not start the interpreter: %v", err)
	default:
		msg = fmt.Sprintf("Error: %v", err)
	}
	o.requestRender(o.renderer.OnError(msg, true))
	if o.onFail != nil {
		o.onFail(err)
	}
}

func (o *Orchestrator) requestRender(force bool) {
	if force {
		o.forceNext = true
		o.throttler.Force(struct{}{})
		return
	}
	o.throttler.Call(struct{}{})
}

func (o *Orchestrator) flushRender() {
	doc := o.renderer.Render()
	snapshot := o.renderer.Snapshot()

	o.mu.Lock()
	o.published = doc
	o.snapshot = snapshot
	o.mu.Unlock()

	o.sink.RenderDocument(doc)
	o.metrics.Rendered(o.forceNext)
	o.forceNext = false
	o.streams.Broadcast(doc)
}

func (o *Orchestrator) shutdown() {
	o.setState(StateStopping)
	o.logger.Info("Session stopping", "document", o.doc)

	o.debouncer.Stop()
	o.throttler.Stop()
	if err := o.interp.Close(); err != nil {
		o.logger.Warn("Failed to stop interpreter", "document", o.doc, "err", err)
	}
	o.streams.Close()

	o.mu.Lock()
	o.state = StateIdle
	o.closed = true
	o.mu.Unlock()
	o.doneOnce.Do(func() { close(o.done) })
}

// RunNow evaluates the whole document immediately, cancelling a pending
// debounced run.
func (o *Orchestrator) RunNow() error {
	return o.call(func() error {
		o.debouncer.Cancel()
		err := o.dispatch(func() (domain.EvaluationRequest, error) {
			return o.builder.FullFile(o.text, o.filePath), nil
		})
		if err != nil {
			o.fail(err)
		}
		return err
	})
}

// RunBlock evaluates the selection, or the block around a cursor, on top
// of the current namespace.
func (o *Orchestrator) RunBlock(sel evaluation.Selection) error {
	return o.call(func() error {
		err := o.dispatch(func() (domain.EvaluationRequest, error) {
			return o.builder.Block(o.text, sel, o.filePath)
		})
		if err != nil && !errors.Is(err, domain.ErrEmptyBlock) {
			o.fail(err)
		}
		return err
	})
}

// UpdateSettings replaces the settings. Interpreter-related changes
// restart the process; the panel is kept.
func (o *Orchestrator) UpdateSettings(next config.Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}
	return o.call(func() error {
		prev := o.settings
		o.settings = next
		o.builder = newBuilder(next)
		o.renderer.SetOptions(next.RenderOptions(o.format))
		o.debouncer.SetDelay(next.Delay)
		if next.WhenToExecute != config.AfterDelay {
			o.debouncer.Cancel()
		}
		o.throttler.SetInterval(next.RenderInterval)

		if prev.RequiresRestart(next) {
			if envFile := config.ResolveEnvFile(prev); envFile != "" {
				if err := o.env.Invalidate(o.ctx, envFile); err != nil {
					o.logger.Warn("Failed to invalidate env cache", "path", envFile, "err", err)
				}
			}
			o.restart("config", 0)
		}
		o.requestRender(true)
		return nil
	})
}

// Stop ends the session: timers are cancelled, the interpreter stopped and
// subscriptions closed. It is idempotent and terminal.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if o.state == StateIdle && !o.closed {
		o.closed = true
		o.mu.Unlock()
		o.debouncer.Stop()
		o.throttler.Stop()
		o.streams.Close()
		_ = o.interp.Close()
		o.doneOnce.Do(func() { close(o.done) })
		return nil
	}
	o.mu.Unlock()

	o.stopOnce.Do(func() { close(o.stopCh) })
	// Stopping the process here does not depend on the loop being free.
	_ = o.interp.Stop()
	<-o.done
	return nil
}

// Done is closed once the session has stopped.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// Status returns the lifecycle state.
func (o *Orchestrator) Status() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Snapshot returns the render state of the last completed render.
func (o *Orchestrator) Snapshot() render.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshot
}

// Document returns the last rendered document.
func (o *Orchestrator) Document() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.published
}

// DocumentID returns the tracked document.
func (o *Orchestrator) DocumentID() domain.DocumentID {
	return o.doc
}

// Subscribe returns a channel receiving every completed render. The
// channel is closed when the session stops or cancel is called.
func (o *Orchestrator) Subscribe() (<-chan string, func()) {
	return o.streams.Subscribe()
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.state = s
}
