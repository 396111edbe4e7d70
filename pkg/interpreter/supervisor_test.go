package interpreter_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/arepl/pkg/domain"
	"github.com/aretw0/arepl/pkg/interpreter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildFixture compiles the fake interpreter into a temp binary.
func buildFixture(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	require.NoError(t, err)

	root := wd
	for {
		if _, err := os.Stat(filepath.Join(root, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(root)
		if parent == root {
			t.Fatal("could not find project root (go.mod)")
		}
		root = parent
	}

	exeName := "fakepython"
	if runtime.GOOS == "windows" {
		exeName += ".exe"
	}
	destPath := filepath.Join(t.TempDir(), exeName)

	sourcePath := filepath.Join(root, "tests", "fixtures", "interpreter", "fakepython")
	cmd := exec.Command("go", "build", "-o", destPath, sourcePath)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "Failed to build fixture: %s", string(out))

	return destPath
}

func newSupervisor(t *testing.T, opts ...interpreter.Option) *interpreter.Supervisor {
	t.Helper()
	s := interpreter.NewSupervisor(interpreter.Config{
		PythonPath:    buildFixture(t),
		BackendScript: "backend.py",
		StopGrace:     time.Second,
	}, opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// collect reads outcomes until done returns true or the timeout expires.
func collect(t *testing.T, s *interpreter.Supervisor, done func(domain.Outcome) bool) []domain.Outcome {
	t.Helper()
	var got []domain.Outcome
	timeout := time.After(5 * time.Second)
	for {
		select {
		case out := <-s.Events():
			got = append(got, out)
			if done(out) {
				return got
			}
		case <-timeout:
			t.Fatalf("timed out waiting for outcome, got %+v", got)
			return got
		}
	}
}

func isFinalResult(o domain.Outcome) bool {
	return o.Kind == domain.OutcomeResult && o.Result.Done
}

func TestSupervisor_ExecuteDeliversPrintThenResult(t *testing.T) {
	s := newSupervisor(t)
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Running())

	seq, err := s.Execute(domain.EvaluationRequest{Code: "x = 1\nprint hi\nname = 'arepl'"})
	require.NoError(t, err)

	got := collect(t, s, isFinalResult)
	require.Len(t, got, 2)

	assert.Equal(t, domain.OutcomePrint, got[0].Kind)
	assert.Equal(t, "hi\n", got[0].Text)
	assert.Equal(t, seq, got[0].Seq)

	res := got[1]
	assert.Equal(t, seq, res.Seq)
	x, ok := res.Result.Variables.Get("x")
	assert.True(t, ok)
	assert.Equal(t, "1", x)
	name, _ := res.Result.Variables.Get("name")
	assert.Equal(t, `"arepl"`, name)
	assert.False(t, s.Evaling())
}

func TestSupervisor_StopIsIdempotent(t *testing.T) {
	s := newSupervisor(t)
	assert.NoError(t, s.Stop(), "stop before start is a no-op")

	require.NoError(t, s.Start(context.Background()))
	assert.NoError(t, s.Stop())
	assert.NoError(t, s.Stop())
	assert.False(t, s.Running())

	select {
	case out := <-s.Events():
		t.Fatalf("deliberate stop must not report anything, got %+v", out)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSupervisor_UnexpectedExit(t *testing.T) {
	s := newSupervisor(t)
	require.NoError(t, s.Start(context.Background()))

	_, err := s.Execute(domain.EvaluationRequest{Code: "warn going down\ncrash 1"})
	require.NoError(t, err)

	got := collect(t, s, func(o domain.Outcome) bool { return o.Kind == domain.OutcomeExit })
	exit := got[len(got)-1]
	assert.Equal(t, 1, exit.ExitCode)
	assert.ErrorIs(t, exit.Err, domain.ErrUnexpectedExit)
	assert.False(t, s.Running())

	for _, o := range got[:len(got)-1] {
		assert.Equal(t, domain.OutcomeStderr, o.Kind, "stderr is drained before the exit is reported")
	}

	_, err = s.Execute(domain.EvaluationRequest{Code: "x = 1"})
	assert.ErrorIs(t, err, domain.ErrNotRunning)

	require.NoError(t, s.Start(context.Background()), "a crashed supervisor can start again")
	assert.True(t, s.Running())
}

func TestSupervisor_SpawnFailureIsRecoverable(t *testing.T) {
	exe := buildFixture(t)
	s := interpreter.NewSupervisor(interpreter.Config{PythonPath: filepath.Join(t.TempDir(), "missing-python")})
	t.Cleanup(func() { _ = s.Close() })

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSpawn)

	var procErr *domain.ProcessError
	assert.ErrorAs(t, err, &procErr)
	assert.False(t, s.Running())

	s.Reconfigure(interpreter.Config{PythonPath: exe, BackendScript: "backend.py"})
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Running())
}

func TestSupervisor_SupersededRequestKeepsItsSequence(t *testing.T) {
	s := newSupervisor(t)
	require.NoError(t, s.Start(context.Background()))

	first, err := s.Execute(domain.EvaluationRequest{Code: "print started\nsleep 100\nx = 1"})
	require.NoError(t, err)
	// The first request is being evaluated, so the second cannot replace it.
	collect(t, s, func(o domain.Outcome) bool { return o.Kind == domain.OutcomePrint })
	second, err := s.Execute(domain.EvaluationRequest{Code: "y = 2"})
	require.NoError(t, err)
	assert.Greater(t, second, first)
	assert.Equal(t, 1, s.Interrupted())

	results := 0
	got := collect(t, s, func(o domain.Outcome) bool {
		if isFinalResult(o) {
			results++
		}
		return results == 2
	})

	var seqs []uint64
	for _, o := range got {
		if isFinalResult(o) {
			seqs = append(seqs, o.Seq)
		}
	}
	assert.Equal(t, []uint64{first, second}, seqs)
}

func TestSupervisor_MalformedOutputIsNotFatal(t *testing.T) {
	s := newSupervisor(t)
	require.NoError(t, s.Start(context.Background()))

	_, err := s.Execute(domain.EvaluationRequest{Code: "garbage\nx = 3"})
	require.NoError(t, err)

	got := collect(t, s, isFinalResult)
	require.Len(t, got, 1)
	x, _ := got[0].Result.Variables.Get("x")
	assert.Equal(t, "3", x)
	assert.True(t, s.Running())
}

func TestSupervisor_IncompatibleVersionIsAWarning(t *testing.T) {
	t.Setenv("FAKEPYTHON_VERSION", "2.7.18")
	s := newSupervisor(t)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Running(), "an old interpreter is still used")

	got := collect(t, s, func(o domain.Outcome) bool { return o.Kind == domain.OutcomeWarning })
	assert.Contains(t, got[0].Text, "v2.7.18")
}

func TestSupervisor_RestartStartsAFreshProcess(t *testing.T) {
	s := newSupervisor(t)
	require.NoError(t, s.Start(context.Background()))

	_, err := s.Execute(domain.EvaluationRequest{Code: "x = 1"})
	require.NoError(t, err)
	collect(t, s, isFinalResult)

	require.NoError(t, s.Restart(context.Background(), 10*time.Millisecond))
	_, err = s.Execute(domain.EvaluationRequest{Code: "y = 2", UsePreviousVariables: true})
	require.NoError(t, err)

	got := collect(t, s, isFinalResult)
	_, hasX := got[0].Result.Variables.Get("x")
	assert.False(t, hasX, "variables do not survive a restart")
}

func TestSupervisor_ExecuteDoesNotBlockOnBusyBackend(t *testing.T) {
	s := newSupervisor(t)
	require.NoError(t, s.Start(context.Background()))

	_, err := s.Execute(domain.EvaluationRequest{Code: "print busy\nsleep 600000"})
	require.NoError(t, err)
	collect(t, s, func(o domain.Outcome) bool { return o.Kind == domain.OutcomePrint })

	padding := strings.Repeat("# padding line\n", 300)
	sent := make(chan struct{})
	go func() {
		defer close(sent)
		for i := range 100 {
			_, err := s.Execute(domain.EvaluationRequest{Code: fmt.Sprintf("%sx = %d", padding, i)})
			assert.NoError(t, err)
		}
	}()
	select {
	case <-sent:
	case <-time.After(5 * time.Second):
		t.Fatal("Execute blocked while the backend was busy")
	}
	assert.Equal(t, 100, s.Interrupted())
	assert.True(t, s.Evaling())

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop() }()
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return while a write was pending")
	}
	assert.False(t, s.Running())
}

func TestSupervisor_NoStartAfterClose(t *testing.T) {
	s := newSupervisor(t)
	require.NoError(t, s.Start(context.Background()))

	closed := make(chan error, 1)
	go func() { closed <- s.Close() }()
	// Racing restarts must never leave a process behind.
	for range 20 {
		_ = s.Restart(context.Background(), 0)
	}
	require.NoError(t, <-closed)

	assert.ErrorIs(t, s.Start(context.Background()), domain.ErrSessionClosed)
	assert.False(t, s.Running())
	assert.NoError(t, s.Close(), "closing twice is a no-op")
}
