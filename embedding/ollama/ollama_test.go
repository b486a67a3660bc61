package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeezy05/researchmate/provider"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if req.Model != "nomic-embed-text" {
			http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embedding": []float64{0.1, 0.2, 0.3},
		})
	})
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{
				{"name": "nomic-embed-text"},
				{"name": "llama3.2"},
			},
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestEmbed(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t)

	p := New(func(o *Options) {
		o.BaseURL = server.URL
	})

	vector, err := p.Embed(ctx, "some text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vector)
	assert.Equal(t, "nomic-embed-text", p.ModelName())
	assert.Equal(t, 768, p.Dimensions())
}

func TestEmbedModelUnavailable(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t)

	p := New(func(o *Options) {
		o.BaseURL = server.URL
		o.Model = "missing-model"
	})

	_, err := p.Embed(ctx, "some text")
	var mu *provider.ErrModelUnavailable
	require.ErrorAs(t, err, &mu)
	assert.Equal(t, "missing-model", mu.Model)
	assert.Contains(t, mu.Available, "nomic-embed-text")
}

func TestPing(t *testing.T) {
	ctx := context.Background()

	t.Run("Reachable", func(t *testing.T) {
		server := newTestServer(t)
		p := New(func(o *Options) { o.BaseURL = server.URL })
		assert.NoError(t, p.Ping(ctx))
	})

	t.Run("Unreachable", func(t *testing.T) {
		server := newTestServer(t)
		url := server.URL
		server.Close()

		p := New(func(o *Options) { o.BaseURL = url })
		err := p.Ping(ctx)
		var unavailable *provider.ErrUnavailable
		require.ErrorAs(t, err, &unavailable)
		assert.Equal(t, "ollama", unavailable.Provider)
	})
}
