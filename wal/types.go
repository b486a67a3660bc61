package wal

import (
	"time"

	"github.com/jeezy05/researchmate/metadata"
)

// DurabilityMode defines the fsync behavior for WAL writes.
type DurabilityMode int

const (
	// DurabilitySync fsyncs after every operation.
	// Slowest but strongest durability guarantee.
	DurabilitySync DurabilityMode = iota

	// DurabilityGroupCommit hands every operation to the operating system
	// on append and batches the fsync at regular intervals, amortizing its
	// cost across multiple operations. A process crash loses nothing; an OS
	// crash or power failure may lose the last interval's operations.
	// Recommended default.
	DurabilityGroupCommit

	// DurabilityAsync never fsyncs explicitly. Fastest writes, but a crash
	// may lose recently acknowledged operations.
	DurabilityAsync
)

// OperationType represents the type of operation in the WAL.
type OperationType uint8

const (
	// OpInsert records a committed record insert.
	OpInsert OperationType = iota
	// OpDelete records a committed record removal.
	OpDelete
	// OpClear records a full index wipe. Replay discards everything
	// accumulated before it.
	OpClear
)

// Entry represents a single entry in the WAL.
type Entry struct {
	Type     OperationType
	ID       string
	Vector   []float32
	Content  string
	Metadata metadata.Document
	SeqNum   uint64
}

// Options contains configuration for the WAL.
type Options struct {
	// Path is the directory where the WAL file is stored.
	Path string

	// Compress enables zstd compression of the entry stream.
	Compress bool

	// CompressionLevel sets the zstd compression level when Compress is on.
	CompressionLevel int

	// DurabilityMode controls fsync behavior.
	DurabilityMode DurabilityMode

	// GroupCommitInterval is the maximum time between fsyncs in
	// GroupCommit mode.
	GroupCommitInterval time.Duration

	// GroupCommitMaxOps forces an fsync after this many buffered
	// operations in GroupCommit mode.
	GroupCommitMaxOps int
}

// DefaultOptions returns default WAL options.
var DefaultOptions = Options{
	Path:                ".",
	Compress:            false,
	CompressionLevel:    3,
	DurabilityMode:      DurabilityGroupCommit,
	GroupCommitInterval: 10 * time.Millisecond,
	GroupCommitMaxOps:   100,
}
