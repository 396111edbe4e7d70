package interpreter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/aretw0/arepl/pkg/domain"
	"github.com/aretw0/arepl/pkg/interpreter/backend"
	"github.com/aretw0/arepl/pkg/observability"
)

const maxLineSize = 16 * 1024 * 1024

// Supervisor owns one interpreter process at a time and turns its output into
// typed outcomes. It is safe for concurrent use; the process handle never
// leaves the supervisor.
type Supervisor struct {
	cfg        Config
	logger     *slog.Logger
	metrics    *observability.Metrics
	bufferSize int

	events chan domain.Outcome
	closed chan struct{}

	mu             sync.Mutex
	cmd            *exec.Cmd
	stdin          io.WriteCloser
	pending        *pendingWrite
	wake           chan struct{}
	cancel         context.CancelFunc
	exited         chan struct{}
	running        bool
	expectedStop   bool
	generation     uint64
	nextSeq        uint64
	inflight       []uint64
	interrupted    int
	versionChecked bool
	scriptDir      string
	isClosed       bool
}

// pendingWrite is a request accepted by Execute but not yet written.
type pendingWrite struct {
	seq  uint64
	line []byte
}

// NewSupervisor creates a supervisor. No process is started until Start.
func NewSupervisor(cfg Config, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:        cfg,
		logger:     defaultLogger(),
		bufferSize: 256,
		closed:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events = make(chan domain.Outcome, s.bufferSize)
	return s
}

// Events is the single outcome stream. It is never closed; stop reading
// after Close.
func (s *Supervisor) Events() <-chan domain.Outcome {
	return s.events
}

// Start spawns the interpreter. Starting a running supervisor is a no-op.
// A spawn failure is returned as a *domain.ProcessError and leaves the
// supervisor ready for another attempt.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isClosed {
		return domain.ErrSessionClosed
	}
	if s.running {
		return nil
	}

	if !s.versionChecked {
		version, err := CheckVersion(ctx, s.cfg.PythonPath)
		if err != nil {
			return err
		}
		s.versionChecked = true
		if !Compatible(version) {
			msg := incompatibleWarning(s.cfg.PythonPath, version)
			s.logger.Warn("Interpreter version check failed", "python", s.cfg.PythonPath, "version", version)
			s.emitLocked(domain.Outcome{Kind: domain.OutcomeWarning, Text: msg})
		} else {
			s.logger.Debug("Interpreter version", "python", s.cfg.PythonPath, "version", version)
		}
	}

	script, err := s.backendScriptLocked()
	if err != nil {
		return &domain.ProcessError{Op: "start", Kind: domain.ErrSpawn, Err: err}
	}

	procCtx, cancel := context.WithCancel(context.Background())
	args := append(append([]string{}, s.cfg.Options...), script)
	cmd := exec.CommandContext(procCtx, s.cfg.PythonPath, args...)
	cmd.Dir = s.cfg.WorkDir
	cmd.Env = append(cmd.Environ(), s.cfg.Env...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = s.stopGrace()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return &domain.ProcessError{Op: "start", Kind: domain.ErrSpawn, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return &domain.ProcessError{Op: "start", Kind: domain.ErrSpawn, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return &domain.ProcessError{Op: "start", Kind: domain.ErrSpawn, Err: err}
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return &domain.ProcessError{Op: "start", Kind: domain.ErrSpawn, Err: err}
	}

	s.generation++
	s.cmd = cmd
	s.stdin = stdin
	s.cancel = cancel
	s.exited = make(chan struct{})
	s.wake = make(chan struct{}, 1)
	s.pending = nil
	s.running = true
	s.expectedStop = false
	s.inflight = nil

	gen := s.generation
	go s.writeLoop(gen, stdin, s.wake, s.exited)
	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		s.readStdout(gen, stdout)
	}()
	go func() {
		defer readers.Done()
		s.readStderr(gen, stderr)
	}()
	go s.wait(gen, cmd, &readers, s.exited)

	s.logger.Info("Interpreter started", "python", s.cfg.PythonPath, "pid", cmd.Process.Pid, "generation", gen)
	return nil
}

// Execute queues req for the running interpreter and returns its sequence
// number without waiting for the write. A request that arrives while another
// is still evaluating supersedes it; the earlier outcome will still arrive
// and carries the older sequence number. A request that was not written yet
// is replaced and never produces an outcome.
func (s *Supervisor) Execute(req domain.EvaluationRequest) (uint64, error) {
	line, err := EncodeRequest(req)
	if err != nil {
		return 0, &domain.ProcessError{Op: "write", Kind: domain.ErrCommunication, Err: err}
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return 0, domain.ErrNotRunning
	}
	if len(s.inflight) > 0 {
		s.interrupted++
		s.metrics.Interrupted()
		s.logger.Debug("Evaluation superseded", "pending", len(s.inflight))
	}
	if s.pending != nil {
		s.dropInflightLocked(s.pending.seq)
		s.logger.Debug("Unsent evaluation replaced", "seq", s.pending.seq)
	}
	s.nextSeq++
	seq := s.nextSeq
	s.inflight = append(s.inflight, seq)
	s.pending = &pendingWrite{seq: seq, line: line}
	wake := s.wake
	s.mu.Unlock()

	select {
	case wake <- struct{}{}:
	default:
	}
	return seq, nil
}

// writeLoop feeds stdin of one process generation. The pipe blocks while
// the backend is busy evaluating, so writes never happen under mu or on
// the caller's goroutine.
func (s *Supervisor) writeLoop(gen uint64, stdin io.Writer, wake <-chan struct{}, exited <-chan struct{}) {
	for {
		select {
		case <-wake:
		case <-exited:
			return
		}

		s.mu.Lock()
		if gen != s.generation {
			s.mu.Unlock()
			return
		}
		p := s.pending
		s.pending = nil
		s.mu.Unlock()
		if p == nil {
			continue
		}

		if _, err := stdin.Write(p.line); err != nil {
			s.mu.Lock()
			if gen == s.generation {
				s.dropInflightLocked(p.seq)
			}
			s.mu.Unlock()
			if errors.Is(err, os.ErrClosed) {
				return
			}
			s.metrics.CommunicationError()
			s.logger.Warn("Failed to send evaluation", "seq", p.seq, "err", err)
		}
	}
}

// Stop terminates the interpreter and waits for its exit to be handled.
// It is idempotent and never reports the exit as a crash.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.expectedStop = true
	stdin, cancel, exited := s.stdin, s.cancel, s.exited
	s.mu.Unlock()

	_ = stdin.Close()
	cancel()
	<-exited
	s.logger.Info("Interpreter stopped", "python", s.cfg.PythonPath)
	return nil
}

// Restart stops the interpreter, waits delay, and starts it again.
func (s *Supervisor) Restart(ctx context.Context, delay time.Duration) error {
	if err := s.Stop(); err != nil {
		return err
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return s.Start(ctx)
}

// Reconfigure replaces the launch configuration used by the next Start.
// A changed interpreter path is checked again.
func (s *Supervisor) Reconfigure(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.PythonPath != s.cfg.PythonPath {
		s.versionChecked = false
	}
	s.cfg = cfg
}

// Close stops the interpreter for good and removes the written backend.
// No Start succeeds once Close has begun.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	close(s.closed)
	s.mu.Unlock()

	err := s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scriptDir != "" {
		_ = os.RemoveAll(s.scriptDir)
	}
	return err
}

// Running reports whether a process is alive.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Evaling reports whether a request is still waiting for its result.
func (s *Supervisor) Evaling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight) > 0
}

// Interrupted is the number of requests superseded while evaluating.
func (s *Supervisor) Interrupted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interrupted
}

func (s *Supervisor) readStdout(gen uint64, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		out, err := ParseLine(scanner.Text())
		if err != nil {
			s.metrics.CommunicationError()
			s.logger.Warn("Ignoring malformed interpreter output", "err", err)
			continue
		}

		s.mu.Lock()
		if gen != s.generation {
			s.mu.Unlock()
			return
		}
		if out.Kind == domain.OutcomeResult && out.Result.Done {
			out.Seq = s.completeLocked()
		} else {
			out.Seq = s.currentLocked()
		}
		s.mu.Unlock()
		s.emit(out)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		s.metrics.CommunicationError()
		s.logger.Warn("Interpreter stdout closed with error", "err", err)
	}
}

func (s *Supervisor) readStderr(gen uint64, r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.mu.Lock()
			stale := gen != s.generation
			seq := s.currentLocked()
			s.mu.Unlock()
			if !stale {
				s.emit(domain.Outcome{Kind: domain.OutcomeStderr, Seq: seq, Text: string(buf[:n])})
			}
		}
		if err != nil {
			return
		}
	}
}

// wait reaps the process once both readers are drained, so stderr and
// print outcomes always precede the exit outcome.
func (s *Supervisor) wait(gen uint64, cmd *exec.Cmd, readers *sync.WaitGroup, exited chan struct{}) {
	readers.Wait()
	err := cmd.Wait()

	s.mu.Lock()
	expected := s.expectedStop
	current := gen == s.generation
	var seq uint64
	if current {
		seq = s.nextSeq
		s.running = false
		s.inflight = nil
		s.pending = nil
		s.cmd = nil
		s.stdin = nil
		s.cancel()
	}
	s.mu.Unlock()
	close(exited)

	if !current || expected {
		return
	}

	code := cmd.ProcessState.ExitCode()
	s.metrics.Restarted("crash")
	s.logger.Warn("Interpreter exited unexpectedly", "code", code, "err", err)
	s.emit(domain.Outcome{
		Kind:     domain.OutcomeExit,
		Seq:      seq,
		ExitCode: code,
		Text:     fmt.Sprintf("interpreter exited with code %d", code),
		Err:      domain.ErrUnexpectedExit,
	})
}

func (s *Supervisor) emit(out domain.Outcome) {
	select {
	case s.events <- out:
	case <-s.closed:
	}
}

// emitLocked must not block while mu is held.
func (s *Supervisor) emitLocked(out domain.Outcome) {
	select {
	case s.events <- out:
	default:
		s.logger.Warn("Outcome buffer full, dropping", "kind", out.Kind)
	}
}

func (s *Supervisor) currentLocked() uint64 {
	if len(s.inflight) > 0 {
		return s.inflight[0]
	}
	return s.nextSeq
}

func (s *Supervisor) completeLocked() uint64 {
	if len(s.inflight) == 0 {
		return s.nextSeq
	}
	seq := s.inflight[0]
	s.inflight = s.inflight[1:]
	return seq
}

func (s *Supervisor) dropInflightLocked(seq uint64) {
	for i, v := range s.inflight {
		if v == seq {
			s.inflight = append(s.inflight[:i], s.inflight[i+1:]...)
			return
		}
	}
}

func (s *Supervisor) backendScriptLocked() (string, error) {
	if s.cfg.BackendScript != "" {
		return s.cfg.BackendScript, nil
	}
	if s.scriptDir == "" {
		dir, err := os.MkdirTemp("", "arepl-backend-")
		if err != nil {
			return "", err
		}
		s.scriptDir = dir
	}
	return backend.Write(s.scriptDir)
}

func (s *Supervisor) stopGrace() time.Duration {
	if s.cfg.StopGrace > 0 {
		return s.cfg.StopGrace
	}
	return DefaultStopGrace
}
