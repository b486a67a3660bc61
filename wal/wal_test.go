package wal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeezy05/researchmate/metadata"
)

func newTestWAL(t *testing.T, optFns ...func(o *Options)) *WAL {
	t.Helper()
	dir := t.TempDir()
	w, err := New(append([]func(o *Options){func(o *Options) {
		o.Path = dir
		o.DurabilityMode = DurabilitySync
	}}, optFns...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func collectEntries(t *testing.T, w *WAL) []Entry {
	t.Helper()
	var entries []Entry
	require.NoError(t, w.Replay(func(e Entry) error {
		entries = append(entries, e)
		return nil
	}))
	return entries
}

func TestWALLogAndReplay(t *testing.T) {
	w := newTestWAL(t)

	md := metadata.Document{"filename": metadata.String("a.txt")}
	require.NoError(t, w.LogInsert("id-1", []float32{1, 2, 3}, "hello world", md))
	require.NoError(t, w.LogInsert("id-2", []float32{4, 5, 6}, "second", nil))
	require.NoError(t, w.LogDelete("id-1"))

	entries := collectEntries(t, w)
	require.Len(t, entries, 3)

	assert.Equal(t, OpInsert, entries[0].Type)
	assert.Equal(t, "id-1", entries[0].ID)
	assert.Equal(t, []float32{1, 2, 3}, entries[0].Vector)
	assert.Equal(t, "hello world", entries[0].Content)
	assert.True(t, entries[0].Metadata["filename"].Equal(metadata.String("a.txt")))

	assert.Equal(t, OpInsert, entries[1].Type)
	assert.Nil(t, entries[1].Metadata)

	assert.Equal(t, OpDelete, entries[2].Type)
	assert.Equal(t, "id-1", entries[2].ID)

	// Sequence numbers are strictly increasing.
	assert.Equal(t, uint64(1), entries[0].SeqNum)
	assert.Equal(t, uint64(2), entries[1].SeqNum)
	assert.Equal(t, uint64(3), entries[2].SeqNum)
}

func TestWALReopen(t *testing.T) {
	dir := t.TempDir()
	w, err := New(func(o *Options) {
		o.Path = dir
		o.DurabilityMode = DurabilitySync
	})
	require.NoError(t, err)
	require.NoError(t, w.LogInsert("id-1", []float32{1}, "one", nil))
	require.NoError(t, w.Close())

	w2, err := New(func(o *Options) {
		o.Path = dir
		o.DurabilityMode = DurabilitySync
	})
	require.NoError(t, err)
	defer func() { _ = w2.Close() }()

	// Sequence numbering continues across restarts.
	require.NoError(t, w2.LogInsert("id-2", []float32{2}, "two", nil))

	entries := collectEntries(t, w2)
	require.Len(t, entries, 2)
	assert.Equal(t, "id-1", entries[0].ID)
	assert.Equal(t, "id-2", entries[1].ID)
	assert.Greater(t, entries[1].SeqNum, entries[0].SeqNum)
}

func TestWALCompressed(t *testing.T) {
	dir := t.TempDir()
	w, err := New(func(o *Options) {
		o.Path = dir
		o.DurabilityMode = DurabilitySync
		o.Compress = true
	})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, w.LogInsert("id", []float32{float32(i)}, "compressible content", nil))
	}

	entries := collectEntries(t, w)
	assert.Len(t, entries, 10)

	// Entries logged after a replay (which rotates the zstd frame) must
	// still be visible.
	require.NoError(t, w.LogDelete("id"))
	entries = collectEntries(t, w)
	assert.Len(t, entries, 11)

	require.NoError(t, w.Close())

	w2, err := New(func(o *Options) {
		o.Path = dir
		o.DurabilityMode = DurabilitySync
	})
	require.NoError(t, err)
	defer func() { _ = w2.Close() }()
	entries = collectEntries(t, w2)
	assert.Len(t, entries, 11)
}

func TestWALGroupCommitVisibleBeforeSync(t *testing.T) {
	dir := t.TempDir()
	w, err := New(func(o *Options) {
		o.Path = dir
		o.DurabilityMode = DurabilityGroupCommit
		// Neither trigger can fire during the test.
		o.GroupCommitInterval = time.Hour
		o.GroupCommitMaxOps = 1000
	})
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	require.NoError(t, w.LogInsert("id-1", []float32{1}, "one", nil))
	require.NoError(t, w.LogInsert("id-2", []float32{2}, "two", nil))

	// A second handle sees both entries without any explicit sync: every
	// acknowledged append has already been handed to the OS, so a process
	// crash loses at most the operation in flight.
	w2, err := New(func(o *Options) {
		o.Path = dir
		o.DurabilityMode = DurabilitySync
	})
	require.NoError(t, err)
	defer func() { _ = w2.Close() }()

	entries := collectEntries(t, w2)
	require.Len(t, entries, 2)
	assert.Equal(t, "id-1", entries[0].ID)
	assert.Equal(t, "id-2", entries[1].ID)
}

func TestWALClear(t *testing.T) {
	w := newTestWAL(t)

	require.NoError(t, w.LogInsert("id-1", []float32{1}, "one", nil))
	require.NoError(t, w.LogClear())
	require.NoError(t, w.LogInsert("id-2", []float32{2}, "two", nil))

	entries := collectEntries(t, w)
	require.Len(t, entries, 3)
	assert.Equal(t, OpClear, entries[1].Type)
}

func TestWALTruncate(t *testing.T) {
	w := newTestWAL(t)

	require.NoError(t, w.LogInsert("id-1", []float32{1}, "one", nil))
	require.NoError(t, w.Truncate())

	assert.Empty(t, collectEntries(t, w))

	// The log keeps working after truncation.
	require.NoError(t, w.LogInsert("id-2", []float32{2}, "two", nil))
	entries := collectEntries(t, w)
	require.Len(t, entries, 1)
	assert.Equal(t, "id-2", entries[0].ID)
}

func TestWALTornTailRecovery(t *testing.T) {
	dir := t.TempDir()
	w, err := New(func(o *Options) {
		o.Path = dir
		o.DurabilityMode = DurabilitySync
	})
	require.NoError(t, err)
	require.NoError(t, w.LogInsert("id-1", []float32{1}, "one", nil))
	require.NoError(t, w.LogInsert("id-2", []float32{2}, "two", nil))
	require.NoError(t, w.Close())

	// Simulate a crash mid-write: garbage at the tail of the log.
	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.Write([]byte{0xDE, 0xAD, 0xBE})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	w2, err := New(func(o *Options) {
		o.Path = dir
		o.DurabilityMode = DurabilitySync
	})
	require.NoError(t, err)
	defer func() { _ = w2.Close() }()

	// Committed entries survive; the torn tail is gone, and new appends
	// are replayable.
	require.NoError(t, w2.LogInsert("id-3", []float32{3}, "three", nil))
	entries := collectEntries(t, w2)
	require.Len(t, entries, 3)
	assert.Equal(t, "id-1", entries[0].ID)
	assert.Equal(t, "id-2", entries[1].ID)
	assert.Equal(t, "id-3", entries[2].ID)
}

func TestWALCallbackErrorPropagates(t *testing.T) {
	w := newTestWAL(t)
	require.NoError(t, w.LogInsert("id-1", []float32{1}, "one", nil))

	wantErr := assert.AnError
	err := w.Replay(func(Entry) error { return wantErr })
	assert.ErrorIs(t, err, wantErr)
}
