package usecases

import (
	"context"
	"fmt"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/entities"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/ports"
)

// RetrieveUseCase implements ports.Retriever over the embedding index.
type RetrieveUseCase struct {
	embedder    ports.EmbeddingService
	vectorStore ports.VectorStore
}

func NewRetrieveUseCase(embedder ports.EmbeddingService, vectorStore ports.VectorStore) *RetrieveUseCase {
	return &RetrieveUseCase{embedder: embedder, vectorStore: vectorStore}
}

// Retrieve searches the corpusLimit nearest chunks and keeps the best topK.
func (uc *RetrieveUseCase) Retrieve(ctx context.Context, query string, corpusLimit, topK int) ([]entities.QueryResult, error) {
	if corpusLimit <= 0 {
		corpusLimit = 30
	}
	if topK <= 0 || topK > corpusLimit {
		topK = corpusLimit
	}

	emb, err := uc.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	results, err := uc.vectorStore.Search(ctx, emb, corpusLimit)
	if err != nil {
		return nil, fmt.Errorf("searching vectors: %w", err)
	}
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}
