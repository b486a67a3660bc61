package snapshot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeezy05/researchmate/blobstore"
	"github.com/jeezy05/researchmate/metadata"
)

func testSnapshot() *Snapshot {
	return &Snapshot{
		Dimension: 3,
		LastSeq:   42,
		Records: []Record{
			{
				ID:      "rec-1",
				Vector:  []float32{0.1, 0.2, 0.3},
				Content: "first chunk",
				Metadata: metadata.Document{
					"source":      metadata.String("paper.pdf"),
					"chunk_index": metadata.Int(0),
					"created_at":  metadata.Time(time.Unix(1700000000, 0)),
				},
				Seq: 41,
			},
			{
				ID:      "rec-2",
				Vector:  []float32{-1, 0, 1},
				Content: "second chunk",
				Seq:     42,
			},
		},
	}
}

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		snap *Snapshot
		opts []func(o *Options)
	}{
		{name: "Plain", snap: testSnapshot()},
		{
			name: "Compressed",
			snap: testSnapshot(),
			opts: []func(o *Options){func(o *Options) { o.Compress = true }},
		},
		{name: "Empty", snap: &Snapshot{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := Encode(tt.snap, tt.opts...)
			require.NoError(t, err)

			got, err := Decode(blob)
			require.NoError(t, err)
			assert.Equal(t, tt.snap.Dimension, got.Dimension)
			assert.Equal(t, tt.snap.LastSeq, got.LastSeq)
			require.Len(t, got.Records, len(tt.snap.Records))
			for i, want := range tt.snap.Records {
				assert.Equal(t, want.ID, got.Records[i].ID)
				assert.Equal(t, want.Vector, got.Records[i].Vector)
				assert.Equal(t, want.Content, got.Records[i].Content)
				assert.Equal(t, want.Seq, got.Records[i].Seq)
				if len(want.Metadata) > 0 {
					assert.Equal(t, want.Metadata, got.Records[i].Metadata)
				} else {
					assert.Empty(t, got.Records[i].Metadata)
				}
			}
		})
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	blob, err := Encode(testSnapshot())
	require.NoError(t, err)

	t.Run("FlippedByte", func(t *testing.T) {
		bad := append([]byte(nil), blob...)
		bad[len(bad)/2] ^= 0xFF
		_, err := Decode(bad)
		assert.ErrorIs(t, err, ErrChecksumMismatch)
	})

	t.Run("Truncated", func(t *testing.T) {
		_, err := Decode(blob[:len(blob)-5])
		assert.Error(t, err)
	})

	t.Run("BadMagic", func(t *testing.T) {
		bad := append([]byte(nil), blob...)
		bad[0] = 'X'
		_, err := Decode(bad)
		assert.ErrorIs(t, err, ErrInvalidFormat)
	})

	t.Run("TooShort", func(t *testing.T) {
		_, err := Decode([]byte{1, 2, 3})
		assert.ErrorIs(t, err, ErrInvalidFormat)
	})
}

func TestEncodeRejectsDimensionMismatch(t *testing.T) {
	snap := testSnapshot()
	snap.Records[1].Vector = []float32{1, 2}

	_, err := Encode(snap)
	assert.Error(t, err)
}

func TestWriteReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.snap")
	snap := testSnapshot()

	require.NoError(t, WriteFile(path, snap))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, snap.LastSeq, got.LastSeq)
	assert.Len(t, got.Records, 2)

	// Overwrite with a newer snapshot.
	snap.LastSeq = 43
	require.NoError(t, WriteFile(path, snap))
	got, err = ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(43), got.LastSeq)
}

func TestManager(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	mgr := NewManager(store, func(o *ManagerOptions) {
		o.Encoding.Compress = true
	})

	_, err := mgr.Restore(ctx, "papers")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	older := testSnapshot()
	older.LastSeq = 10
	key, err := mgr.Publish(ctx, "papers", older)
	require.NoError(t, err)
	assert.Equal(t, "papers/00000000000000000010.snap", key)

	newer := testSnapshot()
	newer.LastSeq = 42
	_, err = mgr.Publish(ctx, "papers", newer)
	require.NoError(t, err)

	got, err := mgr.Restore(ctx, "papers")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got.LastSeq)

	// Snapshots for other indexes stay invisible.
	other := testSnapshot()
	other.LastSeq = 99
	_, err = mgr.Publish(ctx, "notes", other)
	require.NoError(t, err)
	got, err = mgr.Restore(ctx, "papers")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got.LastSeq)

	require.NoError(t, mgr.Prune(ctx, "papers", 1))
	names, err := store.List(ctx, "papers/")
	require.NoError(t, err)
	assert.Equal(t, []string{"papers/00000000000000000042.snap"}, names)
}

func TestManagerWithLocalStore(t *testing.T) {
	ctx := context.Background()
	store, err := blobstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	mgr := NewManager(store)

	// Manager keys contain a slash, so publishing exercises the store's
	// subdirectory handling.
	snap := testSnapshot()
	key, err := mgr.Publish(ctx, "papers", snap)
	require.NoError(t, err)
	assert.Equal(t, "papers/00000000000000000042.snap", key)

	got, err := mgr.Restore(ctx, "papers")
	require.NoError(t, err)
	assert.Equal(t, snap.LastSeq, got.LastSeq)

	older := testSnapshot()
	older.LastSeq = 10
	_, err = mgr.Publish(ctx, "papers", older)
	require.NoError(t, err)

	require.NoError(t, mgr.Prune(ctx, "papers", 1))
	names, err := store.List(ctx, "papers/")
	require.NoError(t, err)
	assert.Equal(t, []string{"papers/00000000000000000042.snap"}, names)
}

type recordingCommitter struct {
	key string
	seq uint64
}

func (c *recordingCommitter) Commit(ctx context.Context, indexName, snapshotKey string, seq uint64) error {
	c.key, c.seq = snapshotKey, seq
	return nil
}

func (c *recordingCommitter) Latest(ctx context.Context, indexName string) (string, uint64, error) {
	if c.key == "" {
		return "", 0, blobstore.ErrNotFound
	}
	return c.key, c.seq, nil
}

func TestManagerWithCommitter(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	committer := &recordingCommitter{}
	mgr := NewManager(store, func(o *ManagerOptions) {
		o.Committer = committer
	})

	_, err := mgr.Restore(ctx, "papers")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	snap := testSnapshot()
	key, err := mgr.Publish(ctx, "papers", snap)
	require.NoError(t, err)
	assert.Equal(t, key, committer.key)
	assert.Equal(t, snap.LastSeq, committer.seq)

	got, err := mgr.Restore(ctx, "papers")
	require.NoError(t, err)
	assert.Equal(t, snap.LastSeq, got.LastSeq)
}
