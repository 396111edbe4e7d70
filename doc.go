/*
Package arepl evaluates a Python file continuously while it is being edited and
renders the results (variables, printed output, errors) into a preview panel.

# Concept

Every edit to the tracked document is rate-limited and turned into an
evaluation request for a long-lived interpreter process. The interpreter runs
the code and streams back printed output and a final result; the preview is
re-rendered from those outcomes. A crashed interpreter is restarted on the
next edit, and a `#$save` marker lets the interpreter reuse the state of an
unchanged prefix instead of recomputing it.

# Packages

  - pkg/ratelimit: generic Debouncer and Throttler.
  - pkg/interpreter: the process Supervisor and its JSON-lines protocol.
  - pkg/evaluation: turns document text into evaluation requests.
  - pkg/render: last-known state and the HTML/Markdown document.
  - pkg/session: the per-document Orchestrator and the Manager.
  - pkg/adapters: caches, locks, the run journal, and the HTTP and MCP previews.

# Usage

	host := arepl.NewHost(config.Default())
	o := host.NewSession("/work/main.py", session.RenderSinkFunc(func(doc string) {
		fmt.Println(doc)
	}), session.WithText(source))
	if err := o.Start(ctx, edits); err != nil {
		log.Fatal(err)
	}
	<-o.Done()
*/
package arepl
