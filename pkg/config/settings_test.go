package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/aretw0/arepl/pkg/config"
	"github.com/aretw0/arepl/pkg/domain"
	"github.com/aretw0/arepl/pkg/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	s, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), s)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "arepl.yaml", `
pythonPath: /usr/bin/python3
pythonOptions: ["-u", "-X", "dev"]
whenToExecute: onSave
delay: 150
restartDelay: 1.5s
showGlobalVars: false
printResultPlacement: bottom
defaultImports: [math, os]
`)

	s, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/usr/bin/python3", s.PythonPath)
	assert.Equal(t, []string{"-u", "-X", "dev"}, s.PythonOptions)
	assert.Equal(t, config.OnSave, s.WhenToExecute)
	assert.Equal(t, 150*time.Millisecond, s.Delay)
	assert.Equal(t, 1500*time.Millisecond, s.RestartDelay)
	assert.False(t, s.ShowGlobalVars)
	assert.Equal(t, render.PlacementBottom, s.PrintResultPlacement)
	assert.Equal(t, []string{"math", "os"}, s.DefaultImports)
	assert.True(t, s.ShowFooter, "unset keys keep their default")
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "arepl.json", `{"delay": 20, "skipLandingPage": true, "envFile": ".env"}`)

	s, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, s.Delay)
	assert.True(t, s.SkipLandingPage)
	assert.Equal(t, ".env", s.EnvFile)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown key":     "pythonPaht: python",
		"bad enum":        "whenToExecute: always",
		"negative delay":  "delay: -5",
		"bad placement":   "printResultPlacement: left",
		"bad duration":    "restartDelay: soon",
		"relative search": "searchURL: search?q=",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeFile(t, "arepl.yaml", content))
			assert.ErrorIs(t, err, domain.ErrConfiguration)
		})
	}
}

func TestRequiresRestart(t *testing.T) {
	base := config.Default()

	next := base
	next.Delay = time.Second
	next.ShowFooter = false
	assert.False(t, base.RequiresRestart(next))

	next = base
	next.PythonOptions = []string{"-u"}
	assert.True(t, base.RequiresRestart(next))

	next = base
	next.PythonPath = "/opt/python"
	assert.True(t, base.RequiresRestart(next))
}

func TestSubstitute(t *testing.T) {
	lookup := func(name string) (string, bool) {
		if name == "VENV" {
			return "/home/u/.venv", true
		}
		return "", false
	}
	assert.Equal(t, "/home/u/.venv/bin/python", config.Substitute("${env:VENV}/bin/python", lookup))
	assert.Equal(t, "/bin/python", config.Substitute("${env:MISSING}/bin/python", lookup))
	assert.Equal(t, "$HOME/python", config.Substitute("$HOME/python", lookup))
}

func TestResolveInterpreter(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script as interpreter")
	}
	dir := t.TempDir()
	python := filepath.Join(dir, "python")
	require.NoError(t, os.WriteFile(python, []byte("#!/bin/sh\n"), 0o755))
	t.Setenv("AREPL_TEST_PY_DIR", dir)

	s := config.Default()
	s.PythonPath = "${env:AREPL_TEST_PY_DIR}/python"
	got, err := config.ResolveInterpreter(s)
	require.NoError(t, err)
	assert.Equal(t, python, got)

	s.PythonPath = filepath.Join(dir, "missing")
	_, err = config.ResolveInterpreter(s)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
