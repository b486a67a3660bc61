package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFile encodes the snapshot and writes it to path atomically: the blob
// lands in a temp file in the same directory, is fsynced, and replaces the
// target via rename. A crash leaves either the old snapshot or the new one,
// never a torn file.
func WriteFile(path string, snap *Snapshot, optFns ...func(o *Options)) error {
	blob, err := Encode(snap, optFns...)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(blob); err != nil {
		cleanup()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to rename snapshot into place: %w", err)
	}

	return nil
}

// ReadFile loads and verifies a snapshot previously written with WriteFile.
func ReadFile(path string) (*Snapshot, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	return Decode(blob)
}
