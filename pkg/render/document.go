package render

import (
	"fmt"
	"html"
	"strings"
	"time"
)

const landingText = "Start typing or save the file to see the evaluation result here."

// Document renders state with opts. The output depends on nothing else, so
// rendering an unchanged state twice yields the same document.
func Document(state State, opts Options) string {
	opts = opts.withDefaults()
	if opts.Format == FormatMarkdown {
		return markdownDocument(state, opts)
	}
	return htmlDocument(state, opts)
}

func htmlDocument(s State, opts Options) string {
	var b strings.Builder
	b.WriteString(`<div id="arepl">` + "\n")

	if s.Empty() {
		if !opts.SkipLandingPage {
			b.WriteString(`<div class="landing">` + html.EscapeString(landingText) + "</div>\n")
		}
		b.WriteString("</div>\n")
		return b.String()
	}

	if s.Notice != "" {
		b.WriteString(`<div class="notice">` + html.EscapeString(s.Notice) + "</div>\n")
	}
	if opts.Placement == PlacementTop {
		htmlPrint(&b, s.Print)
	}
	if s.Error != "" {
		class := "error"
		if s.Crashed {
			class = "error crashed"
		}
		b.WriteString(`<div class="` + class + `"><pre>` + Linkify(s.Error, opts.SearchURL) + "</pre></div>\n")
	}
	if len(s.Variables) > 0 {
		b.WriteString(`<div class="variables"><pre>`)
		for _, v := range s.Variables {
			b.WriteString(html.EscapeString(v.Name) + " = " + html.EscapeString(v.Value) + "\n")
		}
		b.WriteString("</pre></div>\n")
	}
	if opts.Placement == PlacementBottom {
		htmlPrint(&b, s.Print)
	}
	if t := s.Timing(); t != TimingNone {
		fmt.Fprintf(&b, `<div class="timing %s">%s</div>`+"\n", t, formatElapsed(s.Elapsed))
	}
	if opts.ShowFooter {
		fmt.Fprintf(&b, `<div class="footer">runs: %d</div>`+"\n", s.Runs)
	}

	b.WriteString("</div>\n")
	return b.String()
}

func htmlPrint(b *strings.Builder, text string) {
	if text == "" {
		return
	}
	b.WriteString(`<div class="print"><pre>` + html.EscapeString(text) + "</pre></div>\n")
}

func markdownDocument(s State, opts Options) string {
	var b strings.Builder

	if s.Empty() {
		if !opts.SkipLandingPage {
			b.WriteString("_" + landingText + "_\n")
		}
		return b.String()
	}

	if s.Notice != "" {
		b.WriteString("> " + s.Notice + "\n\n")
	}
	if opts.Placement == PlacementTop {
		markdownPrint(&b, s.Print)
	}
	if s.Error != "" {
		if s.Crashed {
			b.WriteString("### Interpreter crashed\n\n")
		} else {
			b.WriteString("### Error\n\n")
		}
		fence(&b, "text", s.Error)
		for _, line := range ExceptionLines(s.Error) {
			fmt.Fprintf(&b, "Search: [%s](%s)\n\n", line, SearchLink(opts.SearchURL, line))
		}
	}
	if len(s.Variables) > 0 {
		b.WriteString("### Variables\n\n")
		var vars strings.Builder
		for _, v := range s.Variables {
			vars.WriteString(v.Name + " = " + v.Value + "\n")
		}
		fence(&b, "python", vars.String())
	}
	if opts.Placement == PlacementBottom {
		markdownPrint(&b, s.Print)
	}
	if t := s.Timing(); t != TimingNone {
		fmt.Fprintf(&b, "_%s (%s)_\n", formatElapsed(s.Elapsed), t)
	}
	if opts.ShowFooter {
		fmt.Fprintf(&b, "\n---\nruns: %d\n", s.Runs)
	}
	return b.String()
}

func markdownPrint(b *strings.Builder, text string) {
	if text == "" {
		return
	}
	b.WriteString("### Print\n\n")
	fence(b, "text", text)
}

// fence writes a code block whose fence is longer than any backtick run in text.
func fence(b *strings.Builder, lang, text string) {
	longest, run := 0, 0
	for _, r := range text {
		if r == '`' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	ticks := strings.Repeat("`", max(3, longest+1))
	b.WriteString(ticks + lang + "\n" + strings.TrimRight(text, "\n") + "\n" + ticks + "\n\n")
}

func formatElapsed(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%.1f ms", float64(d)/float64(time.Millisecond))
}
