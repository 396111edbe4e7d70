package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the arepl ASCII art banner and version.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	// Python blue fading into yellow.
	lines := []struct {
		text  string
		color string
	}{
		{`   __ _ _ __ ___ _ __ | |`, "#3776ab"},
		{`  / _' | '__/ _ \ '_ \| |`, "#4b8bbe"},
		{` | (_| | | |  __/ |_) | |`, "#9fb94a"},
		{`  \__,_|_|  \___| .__/|_|`, "#ffd43b"},
		{`                |_|`, "#ffe873"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  live python evaluation v"+strings.TrimSpace(version)).Faint())
	fmt.Fprintln(w)
}
