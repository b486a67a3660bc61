// Package ollama provides a generation provider backed by a local Ollama
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

	"github.com/jeezy05/researchmate/generation"
	"github.com/jeezy05/researchmate/provider"
)

// Compile-time check that Provider satisfies the generation port.
var _ generation.Provider = (*Provider)(nil)

const providerName = "ollama"

// Options contains configuration options for the Ollama generation provider.
type Options struct {
	// BaseURL is the Ollama API base URL.
	BaseURL string

	// Model is the generation model to use.
	Model string

	// Timeout is the per-request timeout. Generation is slow; keep this
	// generous.
	Timeout time.Duration

	// Temperature controls sampling randomness. Zero leaves the model
	// default in place.
	Temperature float64

	// MaxTokens caps the completion length. Zero means no explicit cap.
	MaxTokens int

	// HTTPClient overrides the default HTTP client. Its Timeout is managed
	// by the provider.
	HTTPClient *http.Client
}

// DefaultOptions contains the default configuration options.
var DefaultOptions = Options{
	BaseURL: "http://localhost:11434",
	Model:   "llama3.2",
	Timeout: 120 * time.Second,
}

// Provider generates completions via the Ollama HTTP API.
type Provider struct {
	client      *http.Client
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
}

// New creates a new Ollama generation provider.
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
		client:      client,
		baseURL:     strings.TrimSuffix(opts.BaseURL, "/"),
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}
}

type generateRequest struct {
	Model   string       `json:"model"`
	Prompt  string       `json:"prompt"`
	Stream  bool         `json:"stream"`
	Options *modelParams `json:"options,omitempty"`
}

type modelParams struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate produces a completion for the given prompt.
func (p *Provider) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := generateRequest{
		Model:  p.model,
		Prompt: prompt,
		Stream: false,
	}
	if p.temperature > 0 || p.maxTokens > 0 {
		reqBody.Options = &modelParams{
			NumPredict:  p.maxTokens,
			Temperature: p.temperature,
		}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal request: %w", provider.ErrGeneration, err)
	}

	endpoint := p.baseURL + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %w", provider.ErrGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", provider.ClassifyTransportError(providerName, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		available, _ := p.Models(ctx)
		return "", &provider.ErrModelUnavailable{Model: p.model, Available: available}
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: ollama returned status %d: %s", provider.ErrGeneration, resp.StatusCode, string(msg))
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %w", provider.ErrGeneration, err)
	}
	return genResp.Response, nil
}

// ModelName returns the name of the generation model.
func (p *Provider) ModelName() string {
	return p.model
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Models lists the models installed on the Ollama instance.
func (p *Provider) Models(ctx context.Context) ([]string, error) {
	endpoint := p.baseURL + "/api/tags"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
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

// Ping verifies the Ollama instance is reachable via /api/tags, a
// lightweight check that runs no inference.
func (p *Provider) Ping(ctx context.Context) error {
	_, err := p.Models(ctx)
	return err
}
