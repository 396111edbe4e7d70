package cli

import (
	"io"
	"os"
	"path/filepath"
	"time"
)

// DefaultJournalPath is where runs are recorded unless --journal says otherwise.
var DefaultJournalPath = filepath.Join(".arepl", "runs.db")

// Options contains the configuration shared by the arepl commands.
type Options struct {
	File        string
	ConfigPath  string
	Debug       bool
	JSONLogs    bool
	RedisURL    string
	JournalPath string
	HTTPAddr    string
	MCP         string // "", "stdio" or "sse"
	MCPPort     int
	NoBanner    bool
	JSON        bool
	Timeout     time.Duration
	Limit       int

	Stdout io.Writer
}

func (o Options) stdout() io.Writer {
	if o.Stdout != nil {
		return o.Stdout
	}
	return os.Stdout
}
