// Package embedding provides the Ollama embedding adapter.
// Clean Architecture: This is an adapter that implements ports.EmbeddingService.
// It knows about Ollama specifics but the domain layer doesn't.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/adapters/gateway"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/ports"
)

// batchSize bounds how many texts go into one /api/embed request.
const batchSize = 32

// OllamaAdapter implements ports.EmbeddingService using Ollama API.
type OllamaAdapter struct {
	baseURL string
	model   string
	gw      *gateway.Gateway
	logger  hclog.Logger
}

// NewOllamaAdapter creates a new Ollama embedding adapter.
func NewOllamaAdapter(baseURL, model string, gw *gateway.Gateway, logger hclog.Logger) *OllamaAdapter {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &OllamaAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		gw:      gw,
		logger:  logger,
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed generates an embedding for a single text.
func (a *OllamaAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := a.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch generates embeddings for multiple texts, in order.
func (a *OllamaAdapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		batch := texts[start:end]

		var resp embedResponse
		ok := a.gw.Call(ctx, gateway.Request{
			Endpoint: a.baseURL + "/api/embed",
			Payload:  embedRequest{Model: a.model, Input: batch},
		}, &resp, func() error {
			if len(resp.Embeddings) != len(batch) {
				return fmt.Errorf("expected %d embeddings, got %d", len(batch), len(resp.Embeddings))
			}
			return nil
		})
		if !ok {
			return nil, fmt.Errorf("embedding texts %d-%d: %w", start, end-1, ports.ErrNoResult)
		}
		embeddings = append(embeddings, resp.Embeddings...)
	}
	a.logger.Debug("embedded texts", "count", len(texts), "model", a.model)
	return embeddings, nil
}
