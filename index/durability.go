package index

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/jeezy05/researchmate/snapshot"
	"github.com/jeezy05/researchmate/wal"
)

// SnapshotFileName is the snapshot file name within the storage directory.
const SnapshotFileName = "index.snap"

func (idx *Index) snapshotPath() string {
	return filepath.Join(idx.opts.Path, SnapshotFileName)
}

// recover restores persisted state: the last checkpoint snapshot, then every
// WAL entry logged after it. Replay is idempotent because a crash between
// snapshot write and WAL truncation can leave already-snapshotted entries in
// the log.
func (idx *Index) recover() error {
	st := emptyState()

	snap, err := snapshot.ReadFile(idx.snapshotPath())
	switch {
	case err == nil:
		st.dimension = snap.Dimension
		st.lastSeq = snap.LastSeq
		for _, rec := range snap.Records {
			stored := &Record{
				ID:       rec.ID,
				Vector:   rec.Vector,
				Content:  rec.Content,
				Metadata: rec.Metadata,
				Seq:      rec.Seq,
			}
			st.byID[stored.ID] = len(st.records)
			st.records = append(st.records, stored)
		}
	case errors.Is(err, fs.ErrNotExist):
		// First open, nothing persisted yet.
	default:
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}

	w, err := wal.New(func(o *wal.Options) {
		*o = idx.opts.WAL
		o.Path = idx.opts.Path
	})
	if err != nil {
		return err
	}

	replayed := 0
	err = w.Replay(func(entry wal.Entry) error {
		applyEntry(st, entry)
		replayed++
		return nil
	})
	if err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to replay WAL: %w", err)
	}

	idx.wal = w
	idx.state.Store(st)
	idx.logger.Info("index recovered",
		slog.Int("records", len(st.byID)),
		slog.Int("replayed", replayed))
	return nil
}

// applyEntry applies a WAL entry to the state being rebuilt. Inserts of an
// existing ID and deletes of a missing one are no-ops, which makes replay
// idempotent.
func applyEntry(st *indexState, entry wal.Entry) {
	switch entry.Type {
	case wal.OpInsert:
		if _, exists := st.byID[entry.ID]; exists {
			return
		}
		if st.dimension > 0 && len(entry.Vector) != st.dimension {
			return
		}
		if st.dimension == 0 {
			st.dimension = len(entry.Vector)
		}
		st.lastSeq++
		st.byID[entry.ID] = len(st.records)
		st.records = append(st.records, &Record{
			ID:       entry.ID,
			Vector:   entry.Vector,
			Content:  entry.Content,
			Metadata: entry.Metadata,
			Seq:      st.lastSeq,
		})
	case wal.OpDelete:
		pos, ok := st.byID[entry.ID]
		if !ok {
			return
		}
		st.deleted.Add(uint32(pos))
		delete(st.byID, entry.ID)
		st.lastSeq++
	case wal.OpClear:
		fresh := emptyState()
		fresh.lastSeq = st.lastSeq + 1
		*st = *fresh
	}
}

// Snapshot captures the current live records as a consistent image.
func (idx *Index) Snapshot() *snapshot.Snapshot {
	st := idx.getState()

	snap := &snapshot.Snapshot{
		Dimension: st.dimension,
		LastSeq:   st.lastSeq,
		Records:   make([]snapshot.Record, 0, len(st.byID)),
	}
	for pos, rec := range st.records {
		if st.deleted.Contains(uint32(pos)) {
			continue
		}
		snap.Records = append(snap.Records, snapshot.Record{
			ID:       rec.ID,
			Vector:   rec.Vector,
			Content:  rec.Content,
			Metadata: rec.Metadata,
			Seq:      rec.Seq,
		})
	}
	return snap
}

// Checkpoint persists a full snapshot and truncates the WAL. Requires a
// storage path.
func (idx *Index) Checkpoint() error {
	if idx.closed.Load() {
		return ErrClosed
	}
	if idx.wal == nil {
		return fmt.Errorf("checkpoint requires a storage path")
	}

	// The write lock keeps the snapshot and the WAL truncation consistent:
	// no mutation can land between the two.
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	snap := idx.Snapshot()
	if err := snapshot.WriteFile(idx.snapshotPath(), snap, func(o *snapshot.Options) {
		*o = idx.opts.Snapshot
	}); err != nil {
		return fmt.Errorf("failed to write checkpoint snapshot: %w", err)
	}
	if err := idx.wal.Truncate(); err != nil {
		return fmt.Errorf("failed to truncate WAL after checkpoint: %w", err)
	}

	idx.logger.Info("checkpoint complete",
		slog.Int("records", len(snap.Records)),
		slog.Uint64("last_seq", snap.LastSeq))
	return nil
}
