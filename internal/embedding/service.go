package embedding

import (
	"context"
	"fmt"

	"github.com/studypartner/backend/internal/llm"
)

// Service turns batches of text into fixed-length vectors through the LLM
// gateway. The model identifier also names the embedding space: vectors from
// different models must never share an index.
type Service struct {
	gateway llm.Gateway
	model   string
}

func NewService(gw llm.Gateway, model string) *Service {
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &Service{gateway: gw, model: model}
}

// Model returns the embedding model identifier this service is bound to.
func (s *Service) Model() string { return s.model }

func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := s.gateway.Embed(ctx, llm.EmbeddingRequest{
		Model: s.model,
		Input: texts,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors: %w",
			len(texts), len(resp.Embeddings), llm.ErrInvalidInput)
	}

	return resp.Embeddings, nil
}

func (s *Service) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned: %w", llm.ErrUnavailable)
	}
	return embeddings[0], nil
}
