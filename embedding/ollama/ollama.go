// Package ollama provides an embedding provider backed by a local Ollama
// instance.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jeezy05/researchmate/embedding"
	"github.com/jeezy05/researchmate/provider"
)

// Compile-time check that Provider satisfies the embedding port.
var _ embedding.Provider = (*Provider)(nil)

const providerName = "ollama"

// Options contains configuration options for the Ollama embedding provider.
type Options struct {
	// BaseURL is the Ollama API base URL.
	BaseURL string

	// Model is the embedding model to use.
	Model string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// Dimensions is the embedding vector size (model-dependent).
	Dimensions int

	// HTTPClient overrides the default HTTP client. Its Timeout is managed
	// by the provider.
	HTTPClient *http.Client
}

// DefaultOptions contains the default configuration options.
var DefaultOptions = Options{
	BaseURL:    "http://localhost:11434",
	Model:      "nomic-embed-text",
	Timeout:    30 * time.Second,
	Dimensions: 768,
}

// Provider computes embeddings via the Ollama HTTP API.
type Provider struct {
	client     *http.Client
	baseURL    string
	model      string
	dimensions int
}

// New creates a new Ollama embedding provider.
func New(optFns ...func(o *Options)) *Provider {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	client.Timeout = opts.Timeout

	return &Provider{
		client:     client,
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		model:      opts.Model,
		dimensions: opts.Dimensions,
	}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns the embedding for the given text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: p.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal request: %w", provider.ErrEmbedding, err)
	}

	endpoint := p.baseURL + "/api/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", provider.ErrEmbedding, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, provider.ClassifyTransportError(providerName, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		// Ollama answers 404 for a model that is not pulled. Surface what
		// is installed instead.
		available, _ := listModels(ctx, p.client, p.baseURL)
		return nil, &provider.ErrModelUnavailable{Model: p.model, Available: available}
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: ollama returned status %d: %s", provider.ErrEmbedding, resp.StatusCode, string(msg))
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %w", provider.ErrEmbedding, err)
	}

	vector := make([]float32, len(embedResp.Embedding))
	for i, v := range embedResp.Embedding {
		vector[i] = float32(v)
	}
	return vector, nil
}

// Dimensions returns the embedding vector size.
func (p *Provider) Dimensions() int {
	return p.dimensions
}

// ModelName returns the name of the embedding model.
func (p *Provider) ModelName() string {
	return p.model
}

// Ping verifies the Ollama instance is reachable via /api/tags, a
// lightweight check that runs no inference.
func (p *Provider) Ping(ctx context.Context) error {
	_, err := listModels(ctx, p.client, p.baseURL)
	return err
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func listModels(ctx context.Context, client *http.Client, baseURL string) ([]string, error) {
	endpoint := baseURL + "/api/tags"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, provider.ClassifyTransportError(providerName, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, &provider.ErrUnavailable{
			Provider: providerName,
			Endpoint: endpoint,
			Cause:    fmt.Errorf("status %d: %s", resp.StatusCode, string(msg)),
		}
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags response: %w", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
