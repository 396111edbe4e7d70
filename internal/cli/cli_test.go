package cli

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/arepl/pkg/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildFakePython compiles the fake interpreter into a temp binary.
func buildFakePython(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("builds a fixture binary")
	}

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
	dest := filepath.Join(t.TempDir(), exeName)
	cmd := exec.Command("go", "build", "-o", dest, filepath.Join(root, "tests", "fixtures", "interpreter", "fakepython"))
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "Failed to build fixture: %s", string(out))
	return dest
}

// project lays out a source file, a settings file and a journal path.
func project(t *testing.T, source string) Options {
	t.Helper()
	dir := t.TempDir()
	file := filepath.Join(dir, "main.py")
	require.NoError(t, os.WriteFile(file, []byte(source), 0o644))

	configPath := filepath.Join(dir, "arepl.yaml")
	config := fmt.Sprintf("pythonPath: %q\ndelay: 10\nrenderInterval: 5\n", buildFakePython(t))
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o644))

	return Options{
		File:        file,
		ConfigPath:  configPath,
		JournalPath: filepath.Join(dir, ".arepl", "runs.db"),
		Timeout:     10 * time.Second,
		Limit:       10,
	}
}

func TestRunOnce(t *testing.T) {
	opts := project(t, "x = 1\nprint hello\n")
	var out bytes.Buffer
	opts.Stdout = &out
	opts.JSON = true

	require.NoError(t, RunOnce(opts))
	assert.Contains(t, out.String(), `"runs": 1`)
	assert.Contains(t, out.String(), "hello")

	out.Reset()
	opts.JSON = false
	require.NoError(t, RunHistory(opts))
	assert.Contains(t, out.String(), "RESULT")
	assert.Contains(t, out.String(), "ok")
}

func TestRunOnce_UserError(t *testing.T) {
	opts := project(t, "raise ValueError: bad\n")
	var out bytes.Buffer
	opts.Stdout = &out

	err := RunOnce(opts)
	assert.ErrorIs(t, err, ErrEvaluationFailed)
	assert.Contains(t, out.String(), "ValueError")

	out.Reset()
	require.NoError(t, RunHistory(opts))
	assert.Contains(t, out.String(), "ValueError: bad")
}

func TestRunOnce_MissingInterpreter(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "main.py")
	require.NoError(t, os.WriteFile(file, []byte("x = 1\n"), 0o644))
	configPath := filepath.Join(dir, "arepl.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("pythonPath: /nonexistent/python\n"), 0o644))

	err := RunOnce(Options{File: file, ConfigPath: configPath, Stdout: &bytes.Buffer{}})
	assert.Error(t, err)
}

func TestRunOnce_MissingFile(t *testing.T) {
	err := RunOnce(Options{File: filepath.Join(t.TempDir(), "missing.py"), Stdout: &bytes.Buffer{}})
	assert.ErrorContains(t, err, "failed to read")
}

func TestRunHistory_NoJournal(t *testing.T) {
	dir := t.TempDir()
	err := RunHistory(Options{File: filepath.Join(dir, "main.py"), JournalPath: filepath.Join(dir, "runs.db")})
	assert.ErrorContains(t, err, "no run journal")
}

func TestSetupStack_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	opts := Options{
		ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"),
		RedisURL:   "redis://" + mr.Addr(),
	}

	st, err := setupStack(t.Context(), opts, render.FormatMarkdown)
	require.NoError(t, err)
	assert.Nil(t, st.journal)
	assert.NotNil(t, st.env)
	assert.NotNil(t, st.host)
	require.NoError(t, st.Close())
}

func TestSetupStack_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := setupStack(t.Context(), Options{RedisURL: "redis://" + addr}, render.FormatMarkdown)
	assert.ErrorContains(t, err, "failed to connect to redis")
}

func TestDocumentPath(t *testing.T) {
	_, err := documentPath("")
	assert.Error(t, err)

	abs, err := documentPath("main.py")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(abs))
}

func TestDisplayAddr(t *testing.T) {
	assert.Equal(t, "localhost:8080", displayAddr(":8080"))
	assert.Equal(t, "0.0.0.0:8080", displayAddr("0.0.0.0:8080"))
}

func TestRunMCP_UnknownTransport(t *testing.T) {
	err := RunMCP(Options{File: "main.py"}, "carrier-pigeon")
	assert.ErrorContains(t, err, "unknown transport")
}
