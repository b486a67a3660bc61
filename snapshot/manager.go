package snapshot

import (
	"context"
	"fmt"
	"sort"

	"github.com/jeezy05/researchmate/blobstore"
)

// Committer publishes an atomic "latest snapshot" pointer. Stores with
// atomic renames do not need one; on S3 the DynamoDB commit store fills this
// role.
type Committer interface {
	Commit(ctx context.Context, indexName, snapshotKey string, seq uint64) error
	Latest(ctx context.Context, indexName string) (string, uint64, error)
}

// ManagerOptions configures the snapshot manager.
type ManagerOptions struct {
	// Committer, if set, records the latest published snapshot out of band.
	// Without one, Restore picks the highest-sequence key from a listing.
	Committer Committer

	// Encoding holds the snapshot encoding settings.
	Encoding Options
}

// DefaultManagerOptions contains default manager settings.
var DefaultManagerOptions = ManagerOptions{
	Encoding: DefaultOptions,
}

// Manager publishes snapshots to a blob store and restores the newest one.
// Keys are "<indexName>/<seq>.snap" with the sequence zero-padded so the
// lexical ordering of a listing matches the numeric ordering.
type Manager struct {
	store blobstore.Store
	opts  ManagerOptions
}

// NewManager creates a snapshot manager over the given store.
func NewManager(store blobstore.Store, optFns ...func(o *ManagerOptions)) *Manager {
	opts := DefaultManagerOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Manager{store: store, opts: opts}
}

func snapshotKey(indexName string, seq uint64) string {
	return fmt.Sprintf("%s/%020d.snap", indexName, seq)
}

// Publish encodes the snapshot, uploads it, and marks it as latest. Returns
// the blob key.
func (m *Manager) Publish(ctx context.Context, indexName string, snap *Snapshot) (string, error) {
	blob, err := Encode(snap, func(o *Options) { *o = m.opts.Encoding })
	if err != nil {
		return "", err
	}

	key := snapshotKey(indexName, snap.LastSeq)
	if err := m.store.Put(ctx, key, blob); err != nil {
		return "", fmt.Errorf("failed to publish snapshot %s: %w", key, err)
	}

	if m.opts.Committer != nil {
		if err := m.opts.Committer.Commit(ctx, indexName, key, snap.LastSeq); err != nil {
			return "", fmt.Errorf("failed to commit snapshot %s: %w", key, err)
		}
	}

	return key, nil
}

// Restore loads the newest published snapshot for indexName. Returns
// blobstore.ErrNotFound when none has been published.
func (m *Manager) Restore(ctx context.Context, indexName string) (*Snapshot, error) {
	key, err := m.latestKey(ctx, indexName)
	if err != nil {
		return nil, err
	}

	blob, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot %s: %w", key, err)
	}
	return Decode(blob)
}

// Prune deletes all but the keep newest snapshots for indexName.
func (m *Manager) Prune(ctx context.Context, indexName string, keep int) error {
	if keep < 0 {
		keep = 0
	}

	names, err := m.store.List(ctx, indexName+"/")
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}
	sort.Strings(names)

	if len(names) <= keep {
		return nil
	}
	for _, name := range names[:len(names)-keep] {
		if err := m.store.Delete(ctx, name); err != nil {
			return fmt.Errorf("failed to prune snapshot %s: %w", name, err)
		}
	}
	return nil
}

func (m *Manager) latestKey(ctx context.Context, indexName string) (string, error) {
	if m.opts.Committer != nil {
		key, _, err := m.opts.Committer.Latest(ctx, indexName)
		if err != nil {
			return "", err
		}
		return key, nil
	}

	names, err := m.store.List(ctx, indexName+"/")
	if err != nil {
		return "", fmt.Errorf("failed to list snapshots: %w", err)
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w: no snapshot for index %s", blobstore.ErrNotFound, indexName)
	}
	sort.Strings(names)
	return names[len(names)-1], nil
}
