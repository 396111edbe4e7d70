package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/arepl/pkg/domain"
	"github.com/aretw0/arepl/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	journal, err := New(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = journal.Close()
	})
	return journal
}

func TestJournal_Contract(t *testing.T) {
	ports.RunJournalContract(t, newTestJournal(t))
}

func TestJournal_AssignsID(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	require.NoError(t, journal.Record(ctx, domain.RunRecord{Document: "/a.py", StartedAt: time.Now()}))

	runs, err := journal.List(ctx, "/a.py", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Len(t, runs[0].ID, 36)
}

func TestJournal_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	ctx := context.Background()

	journal, err := New(path)
	require.NoError(t, err)
	require.NoError(t, journal.Record(ctx, domain.RunRecord{ID: "r1", Document: "/a.py", StartedAt: time.Now(), Interrupted: 2}))
	require.NoError(t, journal.Close())

	journal, err = New(path)
	require.NoError(t, err)
	defer journal.Close()

	runs, err := journal.List(ctx, "/a.py", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].Interrupted)
}
