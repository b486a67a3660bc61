package wal

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// Replay feeds every committed entry to the callback, in log order.
//
// Entries are delivered exactly as logged; an OpClear entry means everything
// accumulated before it must be discarded by the caller. A torn tail (from a
// crash mid-write) silently ends the replay, consistent with losing at most
// the in-flight operation.
func (w *WAL) Replay(callback func(entry Entry) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("WAL is closed")
	}

	// Make buffered entries visible to the read handle.
	if err := w.flushLocked(false); err != nil {
		return err
	}
	if w.compressed {
		// A zstd frame is only decodable once finalized; close the current
		// frame and start a fresh one for subsequent appends.
		if err := w.compressor.Close(); err != nil {
			return fmt.Errorf("failed to finalize WAL frame: %w", err)
		}
		if err := w.resetWriteStack(); err != nil {
			return err
		}
	}

	_, err := w.replayFile(callback)
	return err
}

// replayFile reads the entry stream from a fresh read-only handle.
//
// The boolean result reports whether the stream ended cleanly; false means a
// torn or corrupt tail was found and reading stopped there. Callback errors
// abort the replay and are returned as-is.
func (w *WAL) replayFile(callback func(entry Entry) error) (bool, error) {
	f, err := os.Open(w.filePath) //nolint:gosec // G304: path is configurable
	if err != nil {
		return false, fmt.Errorf("failed to open WAL for replay: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Seek(w.dataOffset, io.SeekStart); err != nil {
		return false, fmt.Errorf("failed to seek WAL data offset: %w", err)
	}

	var reader io.Reader
	if w.compressed {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return false, fmt.Errorf("failed to create decompressor: %w", err)
		}
		defer dec.Close()
		reader = dec
	} else {
		reader = bufio.NewReader(f)
	}

	for {
		var entry Entry
		if err := decodeEntry(reader, &entry); err != nil {
			if err == io.EOF {
				return true, nil
			}
			// Torn or corrupt tail: stop here, keeping what was committed.
			return false, nil
		}
		if err := callback(entry); err != nil {
			return true, err
		}
	}
}
