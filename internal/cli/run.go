package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aretw0/arepl/internal/presentation/tui"
	"github.com/aretw0/arepl/pkg/config"
	"github.com/aretw0/arepl/pkg/domain"
	"github.com/aretw0/arepl/pkg/render"
	"github.com/aretw0/arepl/pkg/session"
)

// ErrEvaluationFailed is returned by RunOnce when the file raised.
var ErrEvaluationFailed = errors.New("evaluation failed")

// RunOnce evaluates a file a single time and prints the result.
func RunOnce(opts Options) error {
	out := opts.stdout()
	path, err := documentPath(opts.File)
	if err != nil {
		return err
	}
	text, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", opts.File, err)
	}

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()
	ctx := context.Context(sigCtx)
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	st, err := setupStack(ctx, opts, render.FormatMarkdown)
	if err != nil {
		return err
	}
	defer st.Close()

	// Fail before spawning anything when no interpreter can be found.
	if _, err := config.ResolveInterpreter(st.settings); err != nil {
		return err
	}

	failures := make(chan error, 1)
	o := st.host.NewSession(domain.DocumentID(path), nil,
		session.WithText(string(text)),
		session.WithFailureHandler(func(err error) {
			select {
			case failures <- err:
			default:
			}
		}),
	)
	renders, unsubscribe := o.Subscribe()
	defer unsubscribe()

	if err := o.Start(ctx, nil); err != nil {
		return err
	}
	defer o.Stop()
	if st.settings.WhenToExecute == config.OnKeybinding {
		if err := o.RunNow(); err != nil {
			return err
		}
	}

	if err := waitForRun(ctx, o, renders, failures); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("evaluation did not finish within %s", opts.Timeout)
		}
		return err
	}

	state := o.Snapshot()
	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(state); err != nil {
			return err
		}
	} else {
		rendered, err := tui.NewRenderer(tui.IsTerminal(out))(o.Document())
		if err != nil {
			rendered = o.Document()
		}
		fmt.Fprint(out, rendered)
	}

	if state.Error != "" || state.Crashed {
		return ErrEvaluationFailed
	}
	return nil
}

// waitForRun blocks until the first evaluation has been rendered.
func waitForRun(ctx context.Context, o *session.Orchestrator, renders <-chan string, failures <-chan error) error {
	for {
		if s := o.Snapshot(); s.Runs > 0 || s.Crashed {
			return nil
		}
		select {
		case _, ok := <-renders:
			if !ok {
				return domain.ErrSessionClosed
			}
		case err := <-failures:
			return err
		case <-o.Done():
			return domain.ErrSessionClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
