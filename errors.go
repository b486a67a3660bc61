package researchmate

import (
	"github.com/jeezy05/researchmate/chunker"
	"github.com/jeezy05/researchmate/index"
	"github.com/jeezy05/researchmate/provider"
	"github.com/jeezy05/researchmate/service"
)

// The error taxonomy is defined next to the packages that produce it; the
// aliases below let callers match everything from the facade.
var (
	// ErrEmptyInput is returned when input text is empty.
	ErrEmptyInput = chunker.ErrEmptyInput

	// ErrInvalidConfig is returned for invalid chunking configuration.
	ErrInvalidConfig = chunker.ErrInvalidConfig

	// ErrInvalidArgument is returned for out-of-range request parameters.
	ErrInvalidArgument = service.ErrInvalidArgument

	// ErrInvalidK is returned when a search asks for fewer than one result.
	ErrInvalidK = index.ErrInvalidK

	// ErrEmbedding marks a failure while computing an embedding.
	ErrEmbedding = provider.ErrEmbedding

	// ErrGeneration marks a failure while generating text.
	ErrGeneration = provider.ErrGeneration

	// ErrProviderTimeout marks a provider call that exceeded its deadline.
	ErrProviderTimeout = provider.ErrTimeout
)

// ErrDimensionMismatch indicates a vector whose dimensionality differs from
// the index's fixed one.
type ErrDimensionMismatch = index.ErrDimensionMismatch

// ErrDuplicateID indicates an insert with an ID that is already present.
type ErrDuplicateID = index.ErrDuplicateID

// ErrProviderUnavailable indicates an unreachable provider endpoint.
type ErrProviderUnavailable = provider.ErrUnavailable

// ErrModelUnavailable indicates the requested model is not installed.
type ErrModelUnavailable = provider.ErrModelUnavailable
