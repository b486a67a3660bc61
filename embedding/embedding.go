// Package embedding defines the port for text embedding providers.
package embedding

import "context"

// Provider computes vector embeddings for text.
type Provider interface {
	// Embed returns the embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// ModelName returns the name of the embedding model.
	ModelName() string

	// Ping verifies the provider is reachable.
	Ping(ctx context.Context) error
}
