package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/studypartner/backend/internal/models"
)

// MemoryIndex is a brute-force cosine-similarity index. It backs single-node
// deployments without Postgres and the package tests.
type MemoryIndex struct {
	mu        sync.RWMutex
	model     string
	dimension int
	records   map[uuid.UUID]Record
}

func NewMemoryIndex(embeddingModel string, dimension int) *MemoryIndex {
	return &MemoryIndex{
		model:     embeddingModel,
		dimension: dimension,
		records:   make(map[uuid.UUID]Record),
	}
}

func (s *MemoryIndex) EnsureReady(ctx context.Context) error {
	if s.dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", s.dimension)
	}
	return nil
}

func (s *MemoryIndex) Info(ctx context.Context) (Info, error) {
	return Info{EmbeddingModel: s.model, Dimension: s.dimension}, nil
}

func (s *MemoryIndex) Upsert(ctx context.Context, records []Record) error {
	// Validate before taking the lock so a bad batch never alters state.
	if err := checkDimensions(records, s.dimension); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[r.SegmentID] = r
	}
	return nil
}

func (s *MemoryIndex) Search(ctx context.Context, query []float32, k int, filter Filter) ([]SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("search k must be positive, got %d", k)
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("query has dimension %d, index expects %d: %w",
			len(query), s.dimension, ErrDimensionMismatch)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]SearchResult, 0, len(s.records))
	for _, r := range s.records {
		if filter.Category != "" && r.Category != filter.Category {
			continue
		}
		results = append(results, SearchResult{
			SegmentID:     r.SegmentID,
			DocumentID:    r.DocumentID,
			SequenceIndex: r.SequenceIndex,
			Category:      r.Category,
			Text:          r.Text,
			Score:         cosine(query, r.Embedding),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return strings.Compare(results[i].SegmentID.String(), results[j].SegmentID.String()) < 0
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *MemoryIndex) TextHashes(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hashes := make(map[uuid.UUID]string, len(ids))
	for _, id := range ids {
		if r, ok := s.records[id]; ok {
			hashes[id] = r.TextHash
		}
	}
	return hashes, nil
}

func (s *MemoryIndex) DeleteByDocument(ctx context.Context, documentID uuid.UUID, fromSequence int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, r := range s.records {
		if r.DocumentID == documentID && r.SequenceIndex >= fromSequence {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryIndex) Categories(ctx context.Context) ([]models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[models.Category]bool)
	for _, r := range s.records {
		seen[r.Category] = true
	}
	categories := make([]models.Category, 0, len(seen))
	for c := range seen {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })
	return categories, nil
}

// Len reports the number of stored records.
func (s *MemoryIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
