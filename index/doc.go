// Package index implements the vector index at the heart of the retrieval
// engine: a flat, exhaustively scanned index with cosine-similarity search.
//
// The index uses a copy-on-write pattern: the full state lives in an
// atomic.Value and every mutation publishes a fresh immutable state, so
// searches are lock-free and always observe a complete, consistent image.
// A single write mutex serializes mutations.
//
// With a storage path configured, every committed mutation is appended to a
// write-ahead log before it becomes visible, and Checkpoint persists a full
// snapshot so the log can be truncated. Reopening the index replays
// snapshot + log, losing at most the operation in flight during a crash.
package index
