package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/aretw0/arepl/pkg/adapters/sqlite"
	"github.com/aretw0/arepl/pkg/domain"
)

// RunHistory prints the most recent runs of a file from the run journal.
func RunHistory(opts Options) error {
	out := opts.stdout()
	path, err := documentPath(opts.File)
	if err != nil {
		return err
	}
	if _, err := os.Stat(opts.JournalPath); err != nil {
		return fmt.Errorf("no run journal at %s: %w", opts.JournalPath, err)
	}

	journal, err := sqlite.New(opts.JournalPath)
	if err != nil {
		return err
	}
	defer journal.Close()

	runs, err := journal.List(context.Background(), domain.DocumentID(path), opts.Limit)
	if err != nil {
		return err
	}
	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	if len(runs) == 0 {
		printSystemMessage(out, "No runs recorded for '%s'.", path)
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tSTARTED\tELAPSED\tVARIABLES\tRESULT")
	for _, run := range runs {
		result := "ok"
		if run.Error != "" {
			result = run.Error
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n",
			run.Seq,
			run.StartedAt.Local().Format(time.DateTime),
			run.Elapsed.Round(time.Microsecond),
			run.Variables,
			result,
		)
	}
	return tw.Flush()
}
