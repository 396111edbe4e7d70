package logging_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/aretw0/arepl/internal/logging"
	"github.com/stretchr/testify/assert"
)

func TestNew_RenamesErrorKey(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Options{Level: slog.LevelInfo, Output: &buf})

	logger.Info("spawn failed", "error", "boom")

	assert.Contains(t, buf.String(), "err=boom")
	assert.NotContains(t, buf.String(), "error=")
}

func TestNew_JSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Options{Level: slog.LevelWarn, JSON: true, Output: &buf})

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.Warn("shown", "pid", 42)
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"pid":42`)
}
