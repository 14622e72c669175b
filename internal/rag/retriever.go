package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/studypartner/backend/internal/embedding"
	"github.com/studypartner/backend/internal/vectorstore"
)

// Retriever embeds a query with the same model used at ingestion and returns
// the top-k nearest records from the index.
type Retriever struct {
	index vectorstore.Index
	embed *embedding.Service

	mu        sync.Mutex
	validated bool
}

func NewRetriever(index vectorstore.Index, embed *embedding.Service) *Retriever {
	return &Retriever{index: index, embed: embed}
}

// checkEmbeddingSpace compares the configured embedding model against the one
// recorded on the index at creation time. Queries embedded with a different
// model than the stored vectors produce meaningless scores, so a mismatch
// fails fast. The check is cached after the first success.
func (r *Retriever) checkEmbeddingSpace(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.validated {
		return nil
	}

	info, err := r.index.Info(ctx)
	if err != nil {
		return fmt.Errorf("read index embedding space: %w", err)
	}
	if info.EmbeddingModel != r.embed.Model() {
		return fmt.Errorf("index was created with model %q, configured model is %q: %w",
			info.EmbeddingModel, r.embed.Model(), ErrEmbeddingSpaceMismatch)
	}
	r.validated = true
	return nil
}

// Retrieve returns up to k records ranked by descending similarity, ties
// broken by ascending segment id. An empty index or an unmatched filter
// yields an empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query text required: %w", ErrInvalidInput)
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d: %w", k, ErrInvalidInput)
	}
	if err := r.checkEmbeddingSpace(ctx); err != nil {
		return nil, err
	}

	queryVec, err := r.embed.EmbedSingle(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := r.index.Search(ctx, queryVec, k, filter)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	sortResults(results)
	return results, nil
}

// sortResults enforces the ranking contract regardless of backend: descending
// score, then ascending segment id for deterministic tie order.
func sortResults(results []vectorstore.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].SegmentID.String() < results[j].SegmentID.String()
	})
}
