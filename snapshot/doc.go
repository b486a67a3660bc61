// Package snapshot serializes a full index image to a single verifiable
// blob.
//
// The on-disk layout is an 8-byte header (magic, format version, flags),
// the record payload (optionally an lz4 frame), and a CRC32 footer over
// everything before it. Local writes go through a temp file and rename so a
// crash never leaves a partial snapshot behind; the Manager publishes
// snapshots to a blobstore.Store and restores the newest committed one.
package snapshot
