package tui

import (
	"bytes"
	"testing"
	"time"

	"github.com/aretw0/arepl/pkg/render"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
)

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "0.1.0\n")
	assert.Contains(t, buf.String(), "live python evaluation v0.1.0")
}

func TestSink_RendersMarkdown(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSink(&buf)
	assert.False(t, sink.tty)

	sink.RenderDocument("### Variables\n\n```\nx = 1\n```\n")
	out := buf.String()
	assert.Contains(t, out, "Variables")
	assert.Contains(t, out, "x = 1")
	assert.NotContains(t, out, "\x1b[2J", "no screen clear off a terminal")
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))
}

func TestStatusLine(t *testing.T) {
	out := termenv.NewOutput(&bytes.Buffer{}, termenv.WithProfile(termenv.Ascii))

	assert.Equal(t, "run 0", StatusLine(out, render.State{}))
	assert.Equal(t, "run 2 · 12ms", StatusLine(out, render.State{
		Runs:            2,
		Elapsed:         12 * time.Millisecond,
		PreviousElapsed: 5 * time.Millisecond,
	}))
	assert.Equal(t, "run 1 · 1ms · ValueError: bad", StatusLine(out, render.State{
		Runs:    1,
		Elapsed: time.Millisecond,
		Error:   "Traceback (most recent call last):\nValueError: bad\n",
	}))
	assert.Equal(t, "run 0 · crashed", StatusLine(out, render.State{Crashed: true, Error: "exit"}))
}
