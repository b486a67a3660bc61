package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"

	"github.com/jeezy05/researchmate/distance"
	"github.com/jeezy05/researchmate/metadata"
	"github.com/jeezy05/researchmate/snapshot"
	"github.com/jeezy05/researchmate/wal"
)

// Record is one entry in the index: a vector, the text it embeds, and its
// metadata.
type Record struct {
	// ID is the record's stable identifier. Left empty on insert, the index
	// assigns a UUID.
	ID string

	// Vector is the embedding. Its length fixes the index dimensionality on
	// the first insert.
	Vector []float32

	// Content is the original text the vector was computed from.
	Content string

	// Metadata carries caller and system attributes.
	Metadata metadata.Document

	// Seq is the commit sequence number, assigned by the index.
	Seq uint64
}

// SearchResult is one search hit.
type SearchResult struct {
	// ID is the identifier of the matched record.
	ID string

	// Score is the similarity in [0, 1]; higher is more similar.
	Score float32

	// Content is the matched record's text.
	Content string

	// Metadata is the matched record's metadata.
	Metadata metadata.Document
}

// SearchOptions contains optional search parameters.
type SearchOptions struct {
	// Filter restricts results to records whose metadata matches.
	Filter *metadata.FilterSet
}

// Options contains configuration options for the index.
type Options struct {
	// Path is the storage directory for the WAL and snapshot. Empty means
	// ephemeral: the index lives in memory only.
	Path string

	// WAL holds write-ahead log settings. The Path field is overridden with
	// the index path.
	WAL wal.Options

	// Snapshot holds snapshot encoding settings for Checkpoint.
	Snapshot snapshot.Options

	// Logger receives operational log records.
	Logger *slog.Logger
}

// DefaultOptions contains the default configuration options for the index.
var DefaultOptions = Options{
	WAL:      wal.DefaultOptions,
	Snapshot: snapshot.DefaultOptions,
}

// indexState holds the immutable state of the index for lock-free reads.
type indexState struct {
	dimension int
	records   []*Record       // insertion order; tombstoned slots stay in place
	byID      map[string]int  // live record id -> position in records
	deleted   *roaring.Bitmap // tombstoned positions
	lastSeq   uint64
}

func emptyState() *indexState {
	return &indexState{
		byID:    make(map[string]int),
		deleted: roaring.New(),
	}
}

// Index is a flat vector index with copy-on-write state for lock-free
// concurrent reads.
type Index struct {
	state   atomic.Value // holds *indexState
	writeMu sync.Mutex   // serializes writes only
	wal     *wal.WAL     // nil for ephemeral indexes
	opts    Options
	logger  *slog.Logger
	closed  atomic.Bool
}

// New creates an index. With a Path configured it recovers any previously
// persisted state (snapshot + WAL replay) and keeps logging mutations.
func New(optFns ...func(o *Options)) (*Index, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	idx := &Index{
		opts:   opts,
		logger: opts.Logger,
	}
	idx.state.Store(emptyState())

	if opts.Path == "" {
		return idx, nil
	}

	if err := idx.recover(); err != nil {
		return nil, err
	}
	return idx, nil
}

// getState returns the current immutable state (lock-free read).
func (idx *Index) getState() *indexState {
	return idx.state.Load().(*indexState)
}

// cloneState creates a shallow copy of the state for copy-on-write. Records
// themselves are immutable once published and are shared between states.
func cloneState(st *indexState) *indexState {
	newRecords := make([]*Record, len(st.records))
	copy(newRecords, st.records)

	newByID := make(map[string]int, len(st.byID))
	for id, pos := range st.byID {
		newByID[id] = pos
	}

	return &indexState{
		dimension: st.dimension,
		records:   newRecords,
		byID:      newByID,
		deleted:   st.deleted.Clone(),
		lastSeq:   st.lastSeq,
	}
}

// Insert adds a record and returns its ID. An empty Record.ID gets a
// generated UUID; a caller-supplied ID that already exists is rejected with
// ErrDuplicateID. The first insert fixes the index dimensionality.
func (idx *Index) Insert(ctx context.Context, rec Record) (string, error) {
	ids, errs := idx.InsertBatch(ctx, []Record{rec})
	if errs[0] != nil {
		return "", errs[0]
	}
	return ids[0], nil
}

// InsertBatch adds multiple records under a single write lock and a single
// durability unit per accepted record. Results are positional: ids[i] and
// errs[i] belong to recs[i]. Accepted records are committed even when
// others in the batch fail.
func (idx *Index) InsertBatch(ctx context.Context, recs []Record) (ids []string, errs []error) {
	ids = make([]string, len(recs))
	errs = make([]error, len(recs))
	if len(recs) == 0 {
		return ids, errs
	}

	if err := ctx.Err(); err != nil {
		for i := range errs {
			errs[i] = err
		}
		return ids, errs
	}
	if idx.closed.Load() {
		for i := range errs {
			errs[i] = ErrClosed
		}
		return ids, errs
	}

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	newState := cloneState(idx.getState())
	changed := false

	for i, rec := range recs {
		if len(rec.Vector) == 0 {
			errs[i] = ErrEmptyVector
			continue
		}
		if newState.dimension > 0 && len(rec.Vector) != newState.dimension {
			errs[i] = &ErrDimensionMismatch{Expected: newState.dimension, Actual: len(rec.Vector)}
			continue
		}

		id := rec.ID
		if id == "" {
			id = uuid.NewString()
		} else if _, exists := newState.byID[id]; exists {
			errs[i] = &ErrDuplicateID{ID: id}
			continue
		}

		stored := &Record{
			ID:       id,
			Vector:   append([]float32(nil), rec.Vector...),
			Content:  rec.Content,
			Metadata: rec.Metadata.Clone(),
		}

		if idx.wal != nil {
			if err := idx.wal.LogInsert(id, stored.Vector, stored.Content, stored.Metadata); err != nil {
				errs[i] = fmt.Errorf("failed to log insert: %w", err)
				continue
			}
		}

		if newState.dimension == 0 {
			newState.dimension = len(stored.Vector)
		}
		newState.lastSeq++
		stored.Seq = newState.lastSeq
		newState.byID[id] = len(newState.records)
		newState.records = append(newState.records, stored)
		ids[i] = id
		changed = true
	}

	if changed {
		idx.state.Store(newState)
	}
	return ids, errs
}

// Search returns up to k records most similar to query, strictly descending
// by score; equal scores are ordered by insertion sequence. An empty index
// yields an empty result.
func (idx *Index) Search(ctx context.Context, query []float32, k int, optFns ...func(o *SearchOptions)) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k < 1 {
		return nil, ErrInvalidK
	}
	if len(query) == 0 {
		return nil, ErrEmptyVector
	}

	var opts SearchOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	st := idx.getState()
	if len(st.byID) == 0 {
		return []SearchResult{}, nil
	}
	if len(query) != st.dimension {
		return nil, &ErrDimensionMismatch{Expected: st.dimension, Actual: len(query)}
	}

	type scored struct {
		pos   int
		score float32
	}
	candidates := make([]scored, 0, len(st.byID))
	for pos, rec := range st.records {
		if st.deleted.Contains(uint32(pos)) {
			continue
		}
		if opts.Filter != nil && !opts.Filter.Matches(rec.Metadata) {
			continue
		}
		candidates = append(candidates, scored{pos: pos, score: distance.SimilarityScore(query, rec.Vector)})
	}

	// Stable sort over ascending positions gives the insertion-order
	// tie-break for equal scores.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if k < len(candidates) {
		candidates = candidates[:k]
	}

	results := make([]SearchResult, len(candidates))
	for i, c := range candidates {
		rec := st.records[c.pos]
		results[i] = SearchResult{
			ID:       rec.ID,
			Score:    c.score,
			Content:  rec.Content,
			Metadata: rec.Metadata.Clone(),
		}
	}
	return results, nil
}

// Get returns the record with the given ID.
func (idx *Index) Get(id string) (Record, bool) {
	st := idx.getState()
	pos, ok := st.byID[id]
	if !ok {
		return Record{}, false
	}
	rec := st.records[pos]
	out := *rec
	out.Vector = append([]float32(nil), rec.Vector...)
	out.Metadata = rec.Metadata.Clone()
	return out, true
}

// Delete removes the records with the given IDs and returns how many were
// actually present. Missing IDs are ignored.
func (idx *Index) Delete(ctx context.Context, ids ...string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if idx.closed.Load() {
		return 0, ErrClosed
	}

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	st := idx.getState()
	present := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := st.byID[id]; ok {
			present = append(present, id)
		}
	}
	if len(present) == 0 {
		return 0, nil
	}

	if idx.wal != nil {
		if err := idx.wal.LogDelete(present...); err != nil {
			return 0, fmt.Errorf("failed to log delete: %w", err)
		}
	}

	newState := cloneState(st)
	for _, id := range present {
		pos := newState.byID[id]
		newState.deleted.Add(uint32(pos))
		delete(newState.byID, id)
		newState.lastSeq++
	}
	idx.state.Store(newState)

	idx.logger.Debug("deleted records", slog.Int("count", len(present)))
	return len(present), nil
}

// DeleteWhere removes all records whose metadata matches the filter and
// returns how many were removed.
func (idx *Index) DeleteWhere(ctx context.Context, filter *metadata.FilterSet) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if idx.closed.Load() {
		return 0, ErrClosed
	}

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	st := idx.getState()
	var matched []string
	for pos, rec := range st.records {
		if st.deleted.Contains(uint32(pos)) {
			continue
		}
		if filter.Matches(rec.Metadata) {
			matched = append(matched, rec.ID)
		}
	}
	if len(matched) == 0 {
		return 0, nil
	}

	if idx.wal != nil {
		if err := idx.wal.LogDelete(matched...); err != nil {
			return 0, fmt.Errorf("failed to log delete: %w", err)
		}
	}

	newState := cloneState(st)
	for _, id := range matched {
		pos := newState.byID[id]
		newState.deleted.Add(uint32(pos))
		delete(newState.byID, id)
		newState.lastSeq++
	}
	idx.state.Store(newState)

	idx.logger.Debug("deleted records by filter", slog.Int("count", len(matched)))
	return len(matched), nil
}

// Clear wipes the index to a structurally fresh state: no records and no
// fixed dimensionality, so the next insert may use a different one.
func (idx *Index) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if idx.closed.Load() {
		return ErrClosed
	}

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	if idx.wal != nil {
		if err := idx.wal.LogClear(); err != nil {
			return fmt.Errorf("failed to log clear: %w", err)
		}
	}

	st := idx.getState()
	fresh := emptyState()
	fresh.lastSeq = st.lastSeq + 1
	idx.state.Store(fresh)

	idx.logger.Info("index cleared")
	return nil
}

// Count returns the number of live records. O(1).
func (idx *Index) Count() int {
	st := idx.getState()
	return len(st.records) - int(st.deleted.GetCardinality())
}

// Dimension returns the fixed vector dimensionality, 0 while the index is
// empty and unlocked.
func (idx *Index) Dimension() int {
	return idx.getState().dimension
}

// Close releases the WAL. The in-memory state stays readable.
func (idx *Index) Close() error {
	if !idx.closed.CompareAndSwap(false, true) {
		return nil
	}
	if idx.wal != nil {
		return idx.wal.Close()
	}
	return nil
}
