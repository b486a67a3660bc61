// Package wal provides write-ahead logging for the vector index.
//
// Every committed insert, delete, and clear is appended to the log before it
// is acknowledged, so that the index can be rebuilt after a crash. Entries
// are CRC-framed: a torn write at the tail of the log is detected during
// replay and loses at most the in-flight operation, never previously
// committed entries.
//
// Features:
//   - Individual and batched operation logging
//   - Optional zstd compression of the entry stream
//   - Configurable fsync behavior (sync, group commit, async)
//   - Truncation after a snapshot checkpoint
//   - Sequential ordering via sequence numbers
package wal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/jeezy05/researchmate/metadata"
)

// FileName is the WAL file name within the configured directory.
const FileName = "researchmate.wal"

// WAL provides write-ahead logging for durability.
type WAL struct {
	mu         sync.Mutex
	file       *os.File
	writer     io.Writer     // top of the write stack (buffered)
	bufWriter  *bufio.Writer // buffered writer over compressor or file
	compressor *zstd.Encoder
	seqNum     uint64
	filePath   string
	compressed bool
	level      int
	dataOffset int64 // start of the entry stream (after the header)
	closed     bool

	durabilityMode    DurabilityMode
	groupCommitMaxOps int
	pendingOps        int

	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New opens (or creates) a WAL in the configured directory.
func New(optFns ...func(o *Options)) (*WAL, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := os.MkdirAll(opts.Path, 0750); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory: %w", err)
	}
	filePath := filepath.Join(opts.Path, FileName)

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_RDWR, 0600) //nolint:gosec // G304: path is configurable
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL file: %w", err)
	}

	w := &WAL{
		file:              file,
		filePath:          filePath,
		level:             opts.CompressionLevel,
		durabilityMode:    opts.DurabilityMode,
		groupCommitMaxOps: opts.GroupCommitMaxOps,
	}

	if err := w.initialize(opts); err != nil {
		_ = file.Close()
		return nil, err
	}

	if w.durabilityMode == DurabilityGroupCommit && opts.GroupCommitInterval > 0 {
		w.stopCh = make(chan struct{})
		w.ticker = time.NewTicker(opts.GroupCommitInterval)
		w.wg.Add(1)
		go w.groupCommitWorker()
	}

	return w, nil
}

func (w *WAL) initialize(opts Options) error {
	st, err := w.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat WAL file: %w", err)
	}

	if st.Size() == 0 {
		hdrLen, err := writeWALHeader(w.file, walHeaderInfo{
			Compressed:       opts.Compress,
			CompressionLevel: opts.CompressionLevel,
		})
		if err != nil {
			return err
		}
		w.dataOffset = hdrLen
		w.compressed = opts.Compress
	} else {
		info, ok, err := readWALHeader(w.file)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("WAL file %s has no header", w.filePath)
		}
		w.dataOffset = int64(walHeaderFixedLen)
		w.compressed = info.Compressed
		w.level = info.CompressionLevel
	}

	// Scan the committed tail: recovers the next sequence number and
	// detects a torn final frame from a crash mid-write.
	var entries []Entry
	clean, err := w.replayFile(func(entry Entry) error {
		if entry.SeqNum > w.seqNum {
			w.seqNum = entry.SeqNum
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan WAL: %w", err)
	}

	if !clean {
		// A torn tail would make any entries appended after it
		// unreachable on the next replay. Rewrite the log with only the
		// cleanly committed entries.
		return w.rewrite(entries)
	}

	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek WAL end: %w", err)
	}
	return w.resetWriteStack()
}

// rewrite truncates the log to its header and re-appends the given entries
// with their original sequence numbers.
func (w *WAL) rewrite(entries []Entry) error {
	if err := w.file.Truncate(w.dataOffset); err != nil {
		return fmt.Errorf("failed to truncate WAL for rewrite: %w", err)
	}
	if _, err := w.file.Seek(w.dataOffset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek WAL for rewrite: %w", err)
	}
	if err := w.resetWriteStack(); err != nil {
		return err
	}
	for i := range entries {
		frame, err := encodeEntry(&entries[i])
		if err != nil {
			return err
		}
		if _, err := w.writer.Write(frame); err != nil {
			return fmt.Errorf("failed to rewrite WAL entry: %w", err)
		}
	}
	return w.flushLocked(true)
}

// resetWriteStack (re)builds the buffered/compressed writer chain on top of
// the file at its current position. Caller must hold mu or be in init.
func (w *WAL) resetWriteStack() error {
	if w.compressed {
		compressor, err := zstd.NewWriter(w.file,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(w.level)))
		if err != nil {
			return fmt.Errorf("failed to create compressor: %w", err)
		}
		w.compressor = compressor
		w.bufWriter = bufio.NewWriter(compressor)
	} else {
		w.compressor = nil
		w.bufWriter = bufio.NewWriter(w.file)
	}
	w.writer = w.bufWriter
	return nil
}

// FilePath returns the path to the WAL file.
func (w *WAL) FilePath() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.filePath
}

// Size returns the current on-disk size of the WAL file.
func (w *WAL) Size() (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	st, err := w.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat WAL file: %w", err)
	}
	return st.Size(), nil
}

// LogInsert appends an insert operation.
func (w *WAL) LogInsert(id string, vector []float32, content string, md metadata.Document) error {
	return w.append(Entry{Type: OpInsert, ID: id, Vector: vector, Content: content, Metadata: md})
}

// LogDelete appends delete operations for the given ids in one durability
// unit.
func (w *WAL) LogDelete(ids ...string) error {
	entries := make([]Entry, len(ids))
	for i, id := range ids {
		entries[i] = Entry{Type: OpDelete, ID: id}
	}
	return w.append(entries...)
}

// LogClear appends a clear operation. Replay discards everything before it.
func (w *WAL) LogClear() error {
	return w.append(Entry{Type: OpClear})
}

func (w *WAL) append(entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("WAL is closed")
	}

	for i := range entries {
		w.seqNum++
		entries[i].SeqNum = w.seqNum
		frame, err := encodeEntry(&entries[i])
		if err != nil {
			return err
		}
		if _, err := w.writer.Write(frame); err != nil {
			return fmt.Errorf("failed to write WAL entry: %w", err)
		}
	}

	switch w.durabilityMode {
	case DurabilitySync:
		return w.flushLocked(true)
	case DurabilityGroupCommit:
		w.pendingOps += len(entries)
		if w.pendingOps >= w.groupCommitMaxOps {
			return w.flushLocked(true)
		}
		// Hand the frames to the OS before acknowledging, so a process
		// crash cannot lose committed operations; only the fsync is
		// deferred to the group commit.
		return w.flushLocked(false)
	case DurabilityAsync:
		// Buffered writes only; the OS decides when data hits disk.
	}
	return nil
}

// Sync flushes buffered entries and fsyncs the file.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	return w.flushLocked(true)
}

func (w *WAL) flushLocked(fsync bool) error {
	if err := w.bufWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush WAL buffer: %w", err)
	}
	if w.compressor != nil {
		if err := w.compressor.Flush(); err != nil {
			return fmt.Errorf("failed to flush WAL compressor: %w", err)
		}
	}
	if fsync {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("failed to fsync WAL: %w", err)
		}
		w.pendingOps = 0
	}
	return nil
}

func (w *WAL) groupCommitWorker() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ticker.C:
			w.mu.Lock()
			if !w.closed && w.pendingOps > 0 {
				_ = w.flushLocked(true)
			}
			w.mu.Unlock()
		case <-w.stopCh:
			return
		}
	}
}

// Truncate discards all logged entries, keeping the header. Called after a
// snapshot checkpoint has made the entries redundant.
func (w *WAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("WAL is closed")
	}

	if err := w.closeWriteStackLocked(); err != nil {
		return err
	}
	if err := w.file.Truncate(w.dataOffset); err != nil {
		return fmt.Errorf("failed to truncate WAL: %w", err)
	}
	if _, err := w.file.Seek(w.dataOffset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek WAL after truncate: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to fsync WAL after truncate: %w", err)
	}
	w.pendingOps = 0
	return w.resetWriteStack()
}

func (w *WAL) closeWriteStackLocked() error {
	if err := w.bufWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush WAL buffer: %w", err)
	}
	if w.compressor != nil {
		if err := w.compressor.Close(); err != nil {
			return fmt.Errorf("failed to close WAL compressor: %w", err)
		}
	}
	return nil
}

// Close flushes and closes the WAL.
func (w *WAL) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	if w.ticker != nil {
		w.ticker.Stop()
		close(w.stopCh)
		w.wg.Wait()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.closeWriteStackLocked(); err != nil {
		_ = w.file.Close()
		return err
	}
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("failed to fsync WAL on close: %w", err)
	}
	return w.file.Close()
}
