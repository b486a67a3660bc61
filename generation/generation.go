// Package generation defines the port for text generation providers.
package generation

import "context"

// Provider generates text completions.
type Provider interface {
	// Generate produces a completion for the given prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// ModelName returns the name of the generation model.
	ModelName() string

	// Models lists the models installed on the provider.
	Models(ctx context.Context) ([]string, error)

	// Ping verifies the provider is reachable.
	Ping(ctx context.Context) error
}
