package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/studypartner/backend/internal/models"
)

var (
	// ErrDimensionMismatch is returned when an upserted vector's length does
	// not match the index's configured dimension. No records are written.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrIndexUnavailable covers transport and service failures talking to
	// the index backend. Callers retry at batch granularity.
	ErrIndexUnavailable = errors.New("vector index unavailable")
)

// Record is one embedded segment as the index stores it. SegmentID is derived
// deterministically from the document and sequence index, so re-ingesting a
// document overwrites rather than duplicates.
type Record struct {
	SegmentID     uuid.UUID
	DocumentID    uuid.UUID
	SequenceIndex int
	Category      models.Category
	Text          string
	TextHash      string
	Embedding     []float32
}

// Filter restricts a search to records with matching metadata. The zero value
// matches everything.
type Filter struct {
	Category models.Category
}

type SearchResult struct {
	SegmentID     uuid.UUID       `json:"segment_id"`
	DocumentID    uuid.UUID       `json:"document_id"`
	SequenceIndex int             `json:"sequence_index"`
	Category      models.Category `json:"category"`
	Text          string          `json:"text"`
	Score         float64         `json:"score"`
}

// Info describes the embedding space the index was created for.
type Info struct {
	EmbeddingModel string
	Dimension      int
}

// Index is the single source of truth for what has been ingested.
type Index interface {
	// EnsureReady creates backing storage if needed and records the embedding
	// space. Calling it again with the same parameters is a no-op.
	EnsureReady(ctx context.Context) error
	Info(ctx context.Context) (Info, error)
	Upsert(ctx context.Context, records []Record) error
	Search(ctx context.Context, query []float32, k int, filter Filter) ([]SearchResult, error)
	// TextHashes returns the stored content hash for each id that exists,
	// backing the ingestor's skip-unchanged check.
	TextHashes(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
	// DeleteByDocument removes the document's records with sequence index
	// fromSequence or higher. fromSequence 0 clears the document entirely;
	// re-ingestion of a shrunk document passes its new segment count to drop
	// the stale tail. Returns how many records were removed.
	DeleteByDocument(ctx context.Context, documentID uuid.UUID, fromSequence int) (int, error)
	Categories(ctx context.Context) ([]models.Category, error)
}

// Namespace for deriving segment ids. Changing it would orphan every stored
// record, so it is fixed for the life of a deployment.
var segmentNamespace = uuid.MustParse("b6f42f27-36d2-4d3e-9b2a-5a1f6c97d410")

// SegmentID derives the stable record key for a document's nth segment.
func SegmentID(documentID uuid.UUID, sequenceIndex int) uuid.UUID {
	return uuid.NewSHA1(segmentNamespace, []byte(fmt.Sprintf("%s:%d", documentID, sequenceIndex)))
}

// HashText fingerprints segment text for the resumability check.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func checkDimensions(records []Record, dimension int) error {
	for _, r := range records {
		if len(r.Embedding) != dimension {
			return fmt.Errorf("segment %s has dimension %d, index expects %d: %w",
				r.SegmentID, len(r.Embedding), dimension, ErrDimensionMismatch)
		}
	}
	return nil
}
