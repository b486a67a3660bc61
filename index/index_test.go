package index

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeezy05/researchmate/metadata"
	"github.com/jeezy05/researchmate/wal"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func mustInsert(t *testing.T, idx *Index, rec Record) string {
	t.Helper()
	id, err := idx.Insert(context.Background(), rec)
	require.NoError(t, err)
	return id
}

func TestInsert(t *testing.T) {
	ctx := context.Background()

	t.Run("GeneratesID", func(t *testing.T) {
		idx := newTestIndex(t)
		id := mustInsert(t, idx, Record{Vector: []float32{1, 0, 0}, Content: "a"})
		assert.NotEmpty(t, id)
		assert.Equal(t, 1, idx.Count())
		assert.Equal(t, 3, idx.Dimension())
	})

	t.Run("KeepsCallerID", func(t *testing.T) {
		idx := newTestIndex(t)
		id := mustInsert(t, idx, Record{ID: "rec-1", Vector: []float32{1, 0, 0}})
		assert.Equal(t, "rec-1", id)
	})

	t.Run("DuplicateID", func(t *testing.T) {
		idx := newTestIndex(t)
		mustInsert(t, idx, Record{ID: "rec-1", Vector: []float32{1, 0, 0}})

		_, err := idx.Insert(ctx, Record{ID: "rec-1", Vector: []float32{0, 1, 0}})
		var dup *ErrDuplicateID
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "rec-1", dup.ID)
		assert.Equal(t, 1, idx.Count())
	})

	t.Run("DimensionFixedByFirstInsert", func(t *testing.T) {
		idx := newTestIndex(t)
		mustInsert(t, idx, Record{Vector: []float32{1, 0, 0}})

		_, err := idx.Insert(ctx, Record{Vector: []float32{1, 0}})
		var dm *ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
		assert.Equal(t, 3, dm.Expected)
		assert.Equal(t, 2, dm.Actual)
	})

	t.Run("EmptyVector", func(t *testing.T) {
		idx := newTestIndex(t)
		_, err := idx.Insert(ctx, Record{Content: "no vector"})
		assert.ErrorIs(t, err, ErrEmptyVector)
	})

	t.Run("BatchPartialSuccess", func(t *testing.T) {
		idx := newTestIndex(t)
		ids, errs := idx.InsertBatch(ctx, []Record{
			{Vector: []float32{1, 0}},
			{Vector: []float32{1, 0, 0}}, // wrong dimension
			{Vector: []float32{0, 1}},
		})
		assert.NoError(t, errs[0])
		assert.Error(t, errs[1])
		assert.NoError(t, errs[2])
		assert.NotEmpty(t, ids[0])
		assert.Empty(t, ids[1])
		assert.Equal(t, 2, idx.Count())
	})
}

func TestSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptyIndex", func(t *testing.T) {
		idx := newTestIndex(t)
		results, err := idx.Search(ctx, []float32{1, 0, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("InvalidK", func(t *testing.T) {
		idx := newTestIndex(t)
		_, err := idx.Search(ctx, []float32{1, 0, 0}, 0)
		assert.ErrorIs(t, err, ErrInvalidK)
	})

	t.Run("QueryDimensionMismatch", func(t *testing.T) {
		idx := newTestIndex(t)
		mustInsert(t, idx, Record{Vector: []float32{1, 0, 0}})

		_, err := idx.Search(ctx, []float32{1, 0}, 1)
		var dm *ErrDimensionMismatch
		assert.ErrorAs(t, err, &dm)
	})

	t.Run("ScoreMappingAndOrder", func(t *testing.T) {
		idx := newTestIndex(t)
		same := mustInsert(t, idx, Record{Vector: []float32{1, 0, 0}, Content: "same"})
		orthogonal := mustInsert(t, idx, Record{Vector: []float32{0, 1, 0}, Content: "orthogonal"})
		opposite := mustInsert(t, idx, Record{Vector: []float32{-1, 0, 0}, Content: "opposite"})

		results, err := idx.Search(ctx, []float32{1, 0, 0}, 3)
		require.NoError(t, err)
		require.Len(t, results, 3)

		assert.Equal(t, same, results[0].ID)
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
		assert.Equal(t, orthogonal, results[1].ID)
		assert.InDelta(t, 0.5, results[1].Score, 1e-6)
		assert.Equal(t, opposite, results[2].ID)
		assert.InDelta(t, 0.0, results[2].Score, 1e-6)
		assert.Equal(t, "same", results[0].Content)
	})

	t.Run("TieBreakByInsertionOrder", func(t *testing.T) {
		idx := newTestIndex(t)
		first := mustInsert(t, idx, Record{Vector: []float32{1, 0, 0}})
		second := mustInsert(t, idx, Record{Vector: []float32{1, 0, 0}})
		third := mustInsert(t, idx, Record{Vector: []float32{2, 0, 0}}) // same direction

		results, err := idx.Search(ctx, []float32{1, 0, 0}, 3)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, []string{first, second, third}, []string{results[0].ID, results[1].ID, results[2].ID})
	})

	t.Run("KLargerThanCount", func(t *testing.T) {
		idx := newTestIndex(t)
		mustInsert(t, idx, Record{Vector: []float32{1, 0}})
		mustInsert(t, idx, Record{Vector: []float32{0, 1}})

		results, err := idx.Search(ctx, []float32{1, 0}, 10)
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("MetadataFilter", func(t *testing.T) {
		idx := newTestIndex(t)
		mustInsert(t, idx, Record{
			Vector:   []float32{1, 0},
			Metadata: metadata.Document{"source": metadata.String("a.txt")},
		})
		keep := mustInsert(t, idx, Record{
			Vector:   []float32{1, 0},
			Metadata: metadata.Document{"source": metadata.String("b.txt")},
		})

		results, err := idx.Search(ctx, []float32{1, 0}, 10, func(o *SearchOptions) {
			o.Filter = metadata.And(metadata.Eq("source", metadata.String("b.txt")))
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, keep, results[0].ID)
	})

	t.Run("DeletedRecordsInvisible", func(t *testing.T) {
		idx := newTestIndex(t)
		id := mustInsert(t, idx, Record{Vector: []float32{1, 0}})
		mustInsert(t, idx, Record{Vector: []float32{0, 1}})

		_, err := idx.Delete(ctx, id)
		require.NoError(t, err)

		results, err := idx.Search(ctx, []float32{1, 0}, 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.NotEqual(t, id, results[0].ID)
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	a := mustInsert(t, idx, Record{Vector: []float32{1, 0}})
	b := mustInsert(t, idx, Record{Vector: []float32{0, 1}})

	n, err := idx.Delete(ctx, a, "missing", b)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, idx.Count())

	// Deleting again is a no-op.
	n, err = idx.Delete(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDeleteWhere(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	for i := 0; i < 3; i++ {
		mustInsert(t, idx, Record{
			Vector:   []float32{1, 0},
			Metadata: metadata.Document{"source": metadata.String("a.txt")},
		})
	}
	mustInsert(t, idx, Record{
		Vector:   []float32{1, 0},
		Metadata: metadata.Document{"source": metadata.String("b.txt")},
	})

	n, err := idx.DeleteWhere(ctx, metadata.And(metadata.Eq("source", metadata.String("a.txt"))))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, idx.Count())
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	mustInsert(t, idx, Record{Vector: []float32{1, 0, 0}})

	require.NoError(t, idx.Clear(ctx))
	assert.Equal(t, 0, idx.Count())
	assert.Equal(t, 0, idx.Dimension())

	// A fresh dimensionality is accepted after Clear.
	mustInsert(t, idx, Record{Vector: []float32{1, 0}})
	assert.Equal(t, 2, idx.Dimension())
}

func TestGet(t *testing.T) {
	idx := newTestIndex(t)
	id := mustInsert(t, idx, Record{
		Vector:   []float32{1, 0},
		Content:  "hello",
		Metadata: metadata.Document{"source": metadata.String("a.txt")},
	})

	rec, ok := idx.Get(id)
	require.True(t, ok)
	assert.Equal(t, "hello", rec.Content)
	assert.Equal(t, []float32{1, 0}, rec.Vector)

	_, ok = idx.Get("missing")
	assert.False(t, ok)
}

func TestConcurrentInserts(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	ids := make([][]string, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id, err := idx.Insert(ctx, Record{
					ID:     fmt.Sprintf("w%d-r%d", w, i),
					Vector: []float32{float32(w), float32(i), 1},
				})
				if err == nil {
					ids[w] = append(ids[w], id)
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker, idx.Count())
	for w := 0; w < workers; w++ {
		require.Len(t, ids[w], perWorker)
		for _, id := range ids[w] {
			_, ok := idx.Get(id)
			assert.True(t, ok)
		}
	}
}

func TestRecovery(t *testing.T) {
	ctx := context.Background()

	open := func(t *testing.T, dir string) *Index {
		idx, err := New(func(o *Options) {
			o.Path = dir
			o.WAL.DurabilityMode = wal.DurabilitySync
		})
		require.NoError(t, err)
		return idx
	}

	t.Run("WALReplay", func(t *testing.T) {
		dir := t.TempDir()

		idx := open(t, dir)
		a := mustInsert(t, idx, Record{Vector: []float32{1, 0}, Content: "keep"})
		b := mustInsert(t, idx, Record{Vector: []float32{0, 1}, Content: "drop"})
		_, err := idx.Delete(ctx, b)
		require.NoError(t, err)
		require.NoError(t, idx.Close())

		idx = open(t, dir)
		defer func() { _ = idx.Close() }()
		assert.Equal(t, 1, idx.Count())
		rec, ok := idx.Get(a)
		require.True(t, ok)
		assert.Equal(t, "keep", rec.Content)
		_, ok = idx.Get(b)
		assert.False(t, ok)
	})

	t.Run("CheckpointThenMoreWrites", func(t *testing.T) {
		dir := t.TempDir()

		idx := open(t, dir)
		mustInsert(t, idx, Record{ID: "snapshotted", Vector: []float32{1, 0}})
		require.NoError(t, idx.Checkpoint())
		mustInsert(t, idx, Record{ID: "logged", Vector: []float32{0, 1}})
		require.NoError(t, idx.Close())

		idx = open(t, dir)
		defer func() { _ = idx.Close() }()
		assert.Equal(t, 2, idx.Count())
		_, ok := idx.Get("snapshotted")
		assert.True(t, ok)
		_, ok = idx.Get("logged")
		assert.True(t, ok)
	})

	t.Run("ClearSurvivesRestart", func(t *testing.T) {
		dir := t.TempDir()

		idx := open(t, dir)
		mustInsert(t, idx, Record{Vector: []float32{1, 0, 0}})
		require.NoError(t, idx.Clear(ctx))
		mustInsert(t, idx, Record{ID: "after-clear", Vector: []float32{1, 0}})
		require.NoError(t, idx.Close())

		idx = open(t, dir)
		defer func() { _ = idx.Close() }()
		assert.Equal(t, 1, idx.Count())
		assert.Equal(t, 2, idx.Dimension())
		_, ok := idx.Get("after-clear")
		assert.True(t, ok)
	})

	t.Run("SearchAfterRecovery", func(t *testing.T) {
		dir := t.TempDir()

		idx := open(t, dir)
		best := mustInsert(t, idx, Record{Vector: []float32{1, 0}, Content: "best"})
		mustInsert(t, idx, Record{Vector: []float32{0, 1}, Content: "other"})
		require.NoError(t, idx.Close())

		idx = open(t, dir)
		defer func() { _ = idx.Close() }()
		results, err := idx.Search(ctx, []float32{1, 0}, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, best, results[0].ID)
	})
}

func TestClosedIndex(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	require.NoError(t, idx.Close())

	_, err := idx.Insert(ctx, Record{Vector: []float32{1}})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = idx.Delete(ctx, "x")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, idx.Clear(ctx), ErrClosed)
}
