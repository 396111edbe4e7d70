package ports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/arepl/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCacheContract runs a suite of tests to verify that a Cache implementation
// adheres to the defined interface contract.
func RunCacheContract(t *testing.T, cache Cache) {
	ctx := context.Background()
	prefix := "contract-" + time.Now().Format("20060102150405")

	t.Run("Set and Get", func(t *testing.T) {
		key := prefix + "-set"
		require.NoError(t, cache.Set(ctx, key, []byte("value"), 0))

		got, err := cache.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("value"), got)
	})

	t.Run("Overwrite", func(t *testing.T) {
		key := prefix + "-overwrite"
		require.NoError(t, cache.Set(ctx, key, []byte("one"), 0))
		require.NoError(t, cache.Set(ctx, key, []byte("two"), time.Minute))

		got, err := cache.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), got)
	})

	t.Run("Get Missing", func(t *testing.T) {
		_, err := cache.Get(ctx, prefix+"-missing")
		assert.ErrorIs(t, err, domain.ErrCacheMiss)
	})

	t.Run("Delete", func(t *testing.T) {
		key := prefix + "-delete"
		require.NoError(t, cache.Set(ctx, key, []byte("value"), 0))
		require.NoError(t, cache.Delete(ctx, key))

		_, err := cache.Get(ctx, key)
		assert.ErrorIs(t, err, domain.ErrCacheMiss)

		assert.NoError(t, cache.Delete(ctx, key), "deleting twice is fine")
	})
}

// RunJournalContract verifies a RunJournal implementation.
func RunJournalContract(t *testing.T, journal RunJournal) {
	ctx := context.Background()
	doc := domain.DocumentID("/contract/" + time.Now().Format("150405.000") + ".py")
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		run := domain.RunRecord{
			ID:        fmt.Sprintf("run-%d", i),
			Document:  doc,
			Seq:       uint64(i),
			StartedAt: start.Add(time.Duration(i) * time.Second),
			Elapsed:   time.Duration(i) * time.Millisecond,
			Variables: i,
		}
		if i == 2 {
			run.Error = "NameError: name 'x' is not defined"
		}
		require.NoError(t, journal.Record(ctx, run))
	}
	require.NoError(t, journal.Record(ctx, domain.RunRecord{ID: "other", Document: "/other.py", StartedAt: start}))

	t.Run("List newest first", func(t *testing.T) {
		runs, err := journal.List(ctx, doc, 0)
		require.NoError(t, err)
		require.Len(t, runs, 3)
		assert.Equal(t, "run-3", runs[0].ID)
		assert.Equal(t, "run-1", runs[2].ID)
		assert.Equal(t, "NameError: name 'x' is not defined", runs[1].Error)
		assert.Equal(t, 3*time.Millisecond, runs[0].Elapsed)
		assert.True(t, runs[0].StartedAt.Equal(start.Add(3*time.Second)))
	})

	t.Run("List with limit", func(t *testing.T) {
		runs, err := journal.List(ctx, doc, 2)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, "run-3", runs[0].ID)
	})

	t.Run("List unknown document", func(t *testing.T) {
		runs, err := journal.List(ctx, "/nothing.py", 0)
		require.NoError(t, err)
		assert.Empty(t, runs)
	})
}
