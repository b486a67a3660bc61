package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jeezy05/researchmate/chunker"
	"github.com/jeezy05/researchmate/embedding"
	"github.com/jeezy05/researchmate/index"
	"github.com/jeezy05/researchmate/metadata"
	"github.com/jeezy05/researchmate/provider"
)

// System metadata keys attached to every stored chunk. They win over
// caller-supplied keys with the same name.
const (
	MetaChunkIndex  = "chunk_index"
	MetaTotalChunks = "total_chunks"
	MetaCreatedAt   = "created_at"
)

// ErrInvalidArgument is returned for out-of-range request parameters.
var ErrInvalidArgument = errors.New("invalid argument")

// Document is one input document to index.
type Document struct {
	// Content is the document text.
	Content string

	// Metadata is attached to every chunk of the document.
	Metadata metadata.Document
}

// ChunkError describes why one chunk of one document was not indexed.
type ChunkError struct {
	// DocIndex is the position of the document in the AddDocuments input.
	DocIndex int

	// ChunkIndex is the chunk position within the document, -1 when the
	// document failed before chunking.
	ChunkIndex int

	// Err is the underlying failure.
	Err error
}

// AddResult reports the outcome of an AddDocuments call. Accepted chunks
// are committed even when others failed.
type AddResult struct {
	// Accepted is the number of chunks stored in the index.
	Accepted int

	// IDs are the record IDs of the accepted chunks, in document order.
	IDs []string

	// Errors lists the chunks that were not stored.
	Errors []ChunkError
}

// Status describes the service and its index.
type Status struct {
	// Healthy reports whether the embedding provider is reachable.
	Healthy bool

	// IndexName is the configured index name.
	IndexName string

	// RecordCount is the number of stored chunks.
	RecordCount int

	// Model is the embedding model name.
	Model string

	// Dimensions is the index vector dimensionality, 0 while empty.
	Dimensions int
}

// Options contains configuration options for the service.
type Options struct {
	// IndexName labels the index in Status and snapshots.
	IndexName string

	// ChunkSize is the maximum chunk length in bytes.
	ChunkSize int

	// ChunkOverlap is the number of bytes shared between adjacent chunks.
	ChunkOverlap int

	// DefaultK is the result count used when a search does not specify one.
	DefaultK int

	// EmbedConcurrency bounds the number of concurrent embedding calls.
	EmbedConcurrency int

	// RateLimit caps embedding calls per second. Inf disables the cap.
	RateLimit rate.Limit

	// RateBurst is the rate limiter burst size.
	RateBurst int

	// Logger receives operational log records.
	Logger *slog.Logger
}

// DefaultOptions contains the default configuration options for the service.
var DefaultOptions = Options{
	IndexName:        "researchmate",
	ChunkSize:        1000,
	ChunkOverlap:     200,
	DefaultK:         5,
	EmbedConcurrency: 4,
	RateLimit:        rate.Inf,
	RateBurst:        1,
}

// Service indexes documents and answers similarity searches over them.
type Service struct {
	idx      *index.Index
	embedder embedding.Provider
	limiter  *rate.Limiter
	opts     Options
	logger   *slog.Logger
}

// New creates a service over the given index and embedding provider. It
// fails when the provider is unreachable.
func New(ctx context.Context, idx *index.Index, embedder embedding.Provider, optFns ...func(o *Options)) (*Service, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.ChunkSize < 1 || opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		return nil, fmt.Errorf("%w: chunk size %d with overlap %d", ErrInvalidArgument, opts.ChunkSize, opts.ChunkOverlap)
	}
	if opts.DefaultK < 1 {
		return nil, fmt.Errorf("%w: default k %d", ErrInvalidArgument, opts.DefaultK)
	}
	if opts.EmbedConcurrency < 1 {
		opts.EmbedConcurrency = 1
	}

	if err := embedder.Ping(ctx); err != nil {
		return nil, fmt.Errorf("embedding provider unavailable: %w", err)
	}

	return &Service{
		idx:      idx,
		embedder: embedder,
		limiter:  rate.NewLimiter(opts.RateLimit, opts.RateBurst),
		opts:     opts,
		logger:   opts.Logger,
	}, nil
}

type pendingChunk struct {
	docIndex   int
	chunkIndex int
	content    string
	meta       metadata.Document
	vector     []float32
	err        error
}

// AddDocuments chunks, embeds, and indexes the given documents. Chunks that
// embed successfully are committed even when others fail; the call returns
// an error only when nothing was accepted.
func (s *Service) AddDocuments(ctx context.Context, docs ...Document) (*AddResult, error) {
	result := &AddResult{}
	createdAt := metadata.Time(time.Now())

	var pending []*pendingChunk
	for docIdx, doc := range docs {
		chunks, err := chunker.SplitAll(doc.Content, s.opts.ChunkSize, s.opts.ChunkOverlap)
		if err != nil {
			result.Errors = append(result.Errors, ChunkError{DocIndex: docIdx, ChunkIndex: -1, Err: err})
			continue
		}
		total := len(chunks)
		for chunkIdx, chunk := range chunks {
			system := metadata.Document{
				MetaChunkIndex:  metadata.Int(int64(chunkIdx)),
				MetaTotalChunks: metadata.Int(int64(total)),
				MetaCreatedAt:   createdAt,
			}
			pending = append(pending, &pendingChunk{
				docIndex:   docIdx,
				chunkIndex: chunkIdx,
				content:    chunk.Content,
				meta:       metadata.Merge(doc.Metadata, system),
			})
		}
	}

	// Embed outside the index locks, bounded by EmbedConcurrency. Failures
	// stay per-chunk; the group context is only canceled by the caller.
	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.EmbedConcurrency)
	for _, pc := range pending {
		g.Go(func() error {
			if err := s.limiter.Wait(groupCtx); err != nil {
				pc.err = err
				return nil
			}
			vector, err := s.embedder.Embed(groupCtx, pc.content)
			if err != nil {
				pc.err = fmt.Errorf("%w: %w", provider.ErrEmbedding, err)
				return nil
			}
			pc.vector = vector
			return nil
		})
	}
	_ = g.Wait()

	embedded := make([]*pendingChunk, 0, len(pending))
	records := make([]index.Record, 0, len(pending))
	for _, pc := range pending {
		if pc.err != nil {
			result.Errors = append(result.Errors, ChunkError{DocIndex: pc.docIndex, ChunkIndex: pc.chunkIndex, Err: pc.err})
			continue
		}
		embedded = append(embedded, pc)
		records = append(records, index.Record{
			Vector:   pc.vector,
			Content:  pc.content,
			Metadata: pc.meta,
		})
	}

	ids, errs := s.idx.InsertBatch(ctx, records)
	for i, err := range errs {
		if err != nil {
			pc := embedded[i]
			result.Errors = append(result.Errors, ChunkError{DocIndex: pc.docIndex, ChunkIndex: pc.chunkIndex, Err: err})
			continue
		}
		result.IDs = append(result.IDs, ids[i])
		result.Accepted++
	}

	s.logger.Info("documents added",
		slog.Int("documents", len(docs)),
		slog.Int("accepted", result.Accepted),
		slog.Int("failed", len(result.Errors)))

	if result.Accepted == 0 && len(result.Errors) > 0 {
		return result, fmt.Errorf("no chunks accepted: %w", result.Errors[0].Err)
	}
	return result, nil
}

// SearchOptions contains optional search parameters.
type SearchOptions struct {
	// K is the maximum number of results. Defaults to the service DefaultK.
	K int

	// Filter restricts results to records whose metadata matches.
	Filter *metadata.FilterSet
}

// Search embeds the query and returns the most similar chunks.
func (s *Service) Search(ctx context.Context, query string, optFns ...func(o *SearchOptions)) ([]index.SearchResult, error) {
	opts := SearchOptions{K: s.opts.DefaultK}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.K < 1 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, opts.K)
	}
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidArgument)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", provider.ErrEmbedding, err)
	}

	return s.idx.Search(ctx, vector, opts.K, func(o *index.SearchOptions) {
		o.Filter = opts.Filter
	})
}

// Remove deletes the records with the given IDs and returns how many were
// present.
func (s *Service) Remove(ctx context.Context, ids ...string) (int, error) {
	return s.idx.Delete(ctx, ids...)
}

// RemoveByMetadata deletes all records whose metadata matches the filter
// and returns how many were removed.
func (s *Service) RemoveByMetadata(ctx context.Context, filter *metadata.FilterSet) (int, error) {
	return s.idx.DeleteWhere(ctx, filter)
}

// Reset wipes the index. In-flight mutations are serialized against it by
// the index write lock.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.idx.Clear(ctx); err != nil {
		return err
	}
	s.logger.Info("index reset", slog.String("index", s.opts.IndexName))
	return nil
}

// Status reports service health and index shape.
func (s *Service) Status(ctx context.Context) Status {
	return Status{
		Healthy:     s.embedder.Ping(ctx) == nil,
		IndexName:   s.opts.IndexName,
		RecordCount: s.idx.Count(),
		Model:       s.embedder.ModelName(),
		Dimensions:  s.idx.Dimension(),
	}
}
