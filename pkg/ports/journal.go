package ports

import (
	"context"

	"github.com/aretw0/arepl/pkg/domain"
)

// RunJournal records completed evaluations.
type RunJournal interface {
	Record(ctx context.Context, run domain.RunRecord) error

	// List returns the most recent runs of document, newest first.
	// A limit <= 0 returns every run.
	List(ctx context.Context, document domain.DocumentID, limit int) ([]domain.RunRecord, error)
}
