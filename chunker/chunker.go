// Package chunker splits raw text into overlapping chunks for embedding.
//
// The splitter works in two phases. First the text is divided into elementary
// pieces using a separator-priority strategy: paragraph breaks, then line
// breaks, then spaces, and finally arbitrary character boundaries, recursing
// with the next separator only into pieces that are still oversized. Then the
// pieces are merged greedily into chunks of at most chunkSize bytes, with each
// subsequent chunk backing up by up to overlap bytes into its predecessor so
// that adjacent chunks share context across the boundary. Hard cuts and the
// overlap back-up land on rune starts, so chunks are always valid UTF-8.
//
// Splitting is deterministic: the same input always yields the same chunks.
// Offsets are byte offsets into the source text, and concatenating chunks
// after dropping each chunk's leading shared bytes (its predecessor's End
// minus its own Start) reconstructs the source exactly.
package chunker

import (
	"errors"
	"fmt"
	"iter"
	"sort"
	"strings"
	"unicode/utf8"
)

var (
	// ErrEmptyInput is returned when the input text is empty.
	ErrEmptyInput = errors.New("input text is empty")

	// ErrInvalidConfig is returned for invalid chunk size or overlap values.
	ErrInvalidConfig = errors.New("invalid chunking configuration")
)

// separators in priority order. The empty separator means a hard split at
// character boundaries and always succeeds.
var separators = []string{"\n\n", "\n", " ", ""}

// Chunk is an immutable substring of a source text.
type Chunk struct {
	// Content is the chunk text.
	Content string
	// Start is the byte offset of the chunk within the source.
	Start int
	// End is the byte offset one past the last byte of the chunk.
	End int
}

// Split validates the parameters and returns a lazy, restartable sequence of
// chunks. chunkSize must be positive and overlap must satisfy
// 0 <= overlap < chunkSize.
//
// Every chunk except possibly the last has at most chunkSize bytes; each
// chunk after the first starts at most overlap bytes before its
// predecessor's end, snapped forward to a rune start.
func Split(text string, chunkSize, overlap int) (iter.Seq[Chunk], error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d must be positive", ErrInvalidConfig, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidConfig, overlap, chunkSize)
	}

	return func(yield func(Chunk) bool) {
		ends := pieceEnds(text, chunkSize)
		for _, c := range mergePieces(text, ends, chunkSize, overlap) {
			if !yield(c) {
				return
			}
		}
	}, nil
}

// SplitAll materializes the chunk sequence into a slice.
func SplitAll(text string, chunkSize, overlap int) ([]Chunk, error) {
	seq, err := Split(text, chunkSize, overlap)
	if err != nil {
		return nil, err
	}
	var chunks []Chunk
	for c := range seq {
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// pieceEnds computes the sorted end offsets of the elementary pieces produced
// by the recursive separator split. Pieces concatenate to the original text;
// the separator stays attached to the piece that precedes it.
func pieceEnds(text string, chunkSize int) []int {
	boundaries := map[int]struct{}{}
	splitSegment(text, 0, len(text), 0, chunkSize, boundaries)

	ends := make([]int, 0, len(boundaries))
	for e := range boundaries {
		ends = append(ends, e)
	}
	sort.Ints(ends)
	return ends
}

func splitSegment(text string, start, end, sepIdx, chunkSize int, boundaries map[int]struct{}) {
	if end-start <= chunkSize {
		boundaries[end] = struct{}{}
		return
	}

	sep := separators[sepIdx]
	if sep == "" {
		// An atomic piece larger than chunkSize. Record only its end; the
		// merge phase hard-cuts inside it at character level, which keeps
		// the overlap stride exact.
		boundaries[end] = struct{}{}
		return
	}

	pieceStart := start
	rest := text[start:end]
	for {
		i := strings.Index(rest, sep)
		if i < 0 {
			break
		}
		pieceEnd := pieceStart + i + len(sep)
		splitPiece(text, pieceStart, pieceEnd, sepIdx, chunkSize, boundaries)
		rest = rest[i+len(sep):]
		pieceStart = pieceEnd
	}
	if pieceStart < end {
		splitPiece(text, pieceStart, end, sepIdx, chunkSize, boundaries)
	}
}

// splitPiece records the piece boundary, recursing with the next separator
// when the piece is still oversized.
func splitPiece(text string, start, end, sepIdx, chunkSize int, boundaries map[int]struct{}) {
	if end-start > chunkSize {
		splitSegment(text, start, end, sepIdx+1, chunkSize, boundaries)
		return
	}
	boundaries[end] = struct{}{}
}

// mergePieces merges elementary pieces into overlapping chunks.
//
// A chunk ends at the furthest piece boundary within chunkSize of its start;
// if no boundary makes progress beyond the shared overlap, the chunk is cut
// at chunkSize bytes, snapped back to a rune start. The next chunk starts
// overlap bytes before the previous end, snapped forward to a rune start so
// that no chunk begins or ends inside a multi-byte rune. The final chunk
// simply runs to the end of the text and may be shorter.
func mergePieces(text string, ends []int, chunkSize, overlap int) []Chunk {
	var chunks []Chunk
	start := 0
	for {
		if len(text)-start <= chunkSize {
			chunks = append(chunks, Chunk{Content: text[start:], Start: start, End: len(text)})
			return chunks
		}

		// Largest piece boundary within the window (start, start+chunkSize].
		end := -1
		if i := sort.SearchInts(ends, start+chunkSize+1) - 1; i >= 0 && ends[i] > start {
			end = ends[i]
		}
		if end-start <= overlap {
			// No boundary fits (or it would not advance past the shared
			// overlap); fall back to a hard cut at a rune start.
			end = runeStartBefore(text, start+chunkSize)
			if end <= start {
				// The rune at start is wider than chunkSize; keep it whole.
				_, n := utf8.DecodeRuneInString(text[start:])
				end = start + n
			}
		}

		chunks = append(chunks, Chunk{Content: text[start:end], Start: start, End: end})
		if end == len(text) {
			return chunks
		}

		next := runeStartAfter(text, end-overlap)
		if next <= start {
			next = end
		}
		start = next
	}
}

// runeStartBefore returns the largest rune start position at or before i.
func runeStartBefore(text string, i int) int {
	for i > 0 && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}

// runeStartAfter returns the smallest rune start position at or after i.
func runeStartAfter(text string, i int) int {
	for i < len(text) && !utf8.RuneStart(text[i]) {
		i++
	}
	return i
}
