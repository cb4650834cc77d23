// Package embed provides the embedding contract semcache's similarity
// cache is built against, plus a concrete HTTP client for Ollama-
// compatible embedding servers.
//
// The cache never calls an embedding provider directly; it holds an
// Embedder and is indifferent to what backs it. Embed must be
// deterministic for a given text — the cache's hit/miss decision depends
// on re-embedding the same prompt producing the same vector.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Embedder generates a fixed-dimension vector embedding from text.
//
// Implementations must be safe for concurrent use and deterministic:
// the same text must always embed to the same vector, since the cache
// re-embeds the prompt on every is_hit/on_miss call.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Config configures the HTTP embedder.
type Config struct {
	// BaseURL is the embedding server root, e.g. http://localhost:11434.
	BaseURL string
	// Model is the embedding model name, e.g. "mxbai-embed-large".
	Model string
	// Dimensions is the expected output vector length.
	Dimensions int
	// Timeout bounds a single embedding request.
	Timeout time.Duration
}

// DefaultConfig returns sane defaults for a local Ollama instance.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "http://localhost:11434",
		Model:      "mxbai-embed-large",
		Dimensions: 1024,
		Timeout:    30 * time.Second,
	}
}

// HTTPEmbedder calls an Ollama-compatible /api/embeddings endpoint.
type HTTPEmbedder struct {
	config *Config
	client *http.Client
}

// NewHTTPEmbedder creates an HTTPEmbedder. If config is nil, DefaultConfig is used.
func NewHTTPEmbedder(config *Config) *HTTPEmbedder {
	if config == nil {
		config = DefaultConfig()
	}
	return &HTTPEmbedder{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed generates an embedding for text by calling the configured server.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: e.config.Model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("embed: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.BaseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embed: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embed: server returned %d: %s", resp.StatusCode, string(data))
	}

	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("embed: decode response: %w", err)
	}
	return out.Embedding, nil
}

// Dimensions returns the configured embedding dimension.
func (e *HTTPEmbedder) Dimensions() int {
	return e.config.Dimensions
}
