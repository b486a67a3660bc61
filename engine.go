package researchmate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jeezy05/researchmate/generation"
	"github.com/jeezy05/researchmate/metadata"
	"github.com/jeezy05/researchmate/service"
)

// DefaultPromptTemplate is the prompt sent to the generation model. It must
// contain the {context} and {question} placeholders.
const DefaultPromptTemplate = `You are a helpful AI assistant specialized in explaining research papers and ML/DS concepts.
Use the following context to answer the question. If you don't know the answer, say so.

Context: {context}

Question: {question}

Answer:`

// DefaultNoContextAnswer is returned when retrieval finds nothing relevant.
const DefaultNoContextAnswer = "I couldn't find any relevant information in the documents to answer your question."

// Options contains configuration options for the engine.
type Options struct {
	// TopK is the number of chunks retrieved per question. Zero uses the
	// indexing service's default.
	TopK int

	// PromptTemplate is the generation prompt with {context} and
	// {question} placeholders.
	PromptTemplate string

	// NoContextAnswer is the answer returned when nothing relevant is
	// found. No generation call is made in that case.
	NoContextAnswer string

	// MaxContextChars bounds the assembled context. Chunks are dropped
	// from the tail once the budget is exceeded; the top-ranked chunk is
	// always kept. Dropped chunks are also dropped from the answer's
	// sources, so an answer only ever cites context the model saw.
	MaxContextChars int

	// Logger receives operational log records.
	Logger *Logger
}

// DefaultOptions contains the default configuration options for the engine.
var DefaultOptions = Options{
	PromptTemplate:  DefaultPromptTemplate,
	NoContextAnswer: DefaultNoContextAnswer,
	MaxContextChars: 12000,
}

// Source is one retrieved chunk cited by an answer.
type Source struct {
	// ID is the chunk's record ID.
	ID string

	// Rank is the 1-based retrieval rank.
	Rank int

	// Score is the similarity score in [0, 1].
	Score float32

	// Content is the full chunk text.
	Content string

	// Metadata is the chunk's stored metadata.
	Metadata metadata.Document
}

// Filename returns the source document name from metadata, or "Unknown".
func (s Source) Filename() string {
	if v, ok := s.Metadata["source"]; ok && v.Kind == metadata.KindString {
		return v.S
	}
	return "Unknown"
}

// ContentPreview returns the content truncated to max bytes, with an
// ellipsis when cut.
func (s Source) ContentPreview(max int) string {
	if max < 1 || len(s.Content) <= max {
		return s.Content
	}
	return s.Content[:max] + "..."
}

// Answer is the result of one question.
type Answer struct {
	// Answer is the generated (or canned no-context) answer text.
	Answer string

	// Sources lists the chunks the prompt was built from, in rank order.
	// Empty when NoContext is set; an answer never cites a chunk the
	// generation model did not see.
	Sources []Source

	// NoContext reports that retrieval found nothing relevant and the
	// canned answer was returned without calling the generation model.
	NoContext bool
}

// Engine orchestrates retrieval and generation. It is stateless per call:
// every question is answered from the index alone.
type Engine struct {
	svc    *service.Service
	gen    generation.Provider
	opts   Options
	logger *Logger
}

// New creates an engine over an indexing service and a generation provider.
func New(svc *service.Service, gen generation.Provider, optFns ...func(o *Options)) (*Engine, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = NoopLogger()
	}
	if !strings.Contains(opts.PromptTemplate, "{context}") || !strings.Contains(opts.PromptTemplate, "{question}") {
		return nil, fmt.Errorf("%w: prompt template must contain {context} and {question}", ErrInvalidConfig)
	}

	return &Engine{
		svc:    svc,
		gen:    gen,
		opts:   opts,
		logger: opts.Logger,
	}, nil
}

// Answer retrieves the chunks most relevant to the question and asks the
// generation model to answer from them. When nothing relevant is found it
// returns the configured no-context answer with no sources.
func (e *Engine) Answer(ctx context.Context, question string) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: empty question", ErrInvalidArgument)
	}

	logger := e.logger.WithQuery(question)

	// Fail fast before doing retrieval work the generation step would
	// waste anyway.
	if err := e.gen.Ping(ctx); err != nil {
		return nil, fmt.Errorf("generation provider unavailable, check that it is running and reachable: %w", err)
	}

	results, err := e.svc.Search(ctx, question, func(o *service.SearchOptions) {
		if e.opts.TopK > 0 {
			o.K = e.opts.TopK
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve context: %w", err)
	}

	if len(results) == 0 {
		logger.Info("no relevant context found")
		return &Answer{
			Answer:    e.opts.NoContextAnswer,
			Sources:   []Source{},
			NoContext: true,
		}, nil
	}

	sources := make([]Source, len(results))
	for i, r := range results {
		sources[i] = Source{
			ID:       r.ID,
			Rank:     i + 1,
			Score:    r.Score,
			Content:  r.Content,
			Metadata: r.Metadata,
		}
	}

	prompt, included := e.buildPrompt(question, sources)
	// Cite only the chunks that made it into the prompt.
	sources = sources[:included]

	text, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	logger.Debug("answer generated", slog.Int("sources", len(sources)))
	return &Answer{
		Answer:  strings.TrimSpace(text),
		Sources: sources,
	}, nil
}

// buildPrompt assembles the bounded context block and fills the template.
// Each chunk is labeled with its rank and source document. It returns the
// prompt and the number of leading sources that fit the budget.
func (e *Engine) buildPrompt(question string, sources []Source) (string, int) {
	var parts []string
	used := 0
	for _, src := range sources {
		part := fmt.Sprintf("[Document %d - %s]\n%s\n", src.Rank, src.Filename(), src.Content)
		if len(parts) > 0 && e.opts.MaxContextChars > 0 && used+len(part) > e.opts.MaxContextChars {
			break
		}
		parts = append(parts, part)
		used += len(part)
	}
	context := strings.Join(parts, "\n")

	prompt := strings.ReplaceAll(e.opts.PromptTemplate, "{context}", context)
	return strings.ReplaceAll(prompt, "{question}", question), len(parts)
}
