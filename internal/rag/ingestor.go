package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/studypartner/backend/internal/embedding"
	"github.com/studypartner/backend/internal/llm"
	"github.com/studypartner/backend/internal/models"
	"github.com/studypartner/backend/internal/vectorstore"
	"github.com/studypartner/backend/pkg/chunker"
	"github.com/studypartner/backend/pkg/retry"
)

// Progress is reported after every finished batch.
type Progress struct {
	BatchesDone    int `json:"batches_done"`
	BatchesTotal   int `json:"batches_total"`
	RecordsWritten int `json:"records_written"`
	RecordsSkipped int `json:"records_skipped"`
	RecordsFailed  int `json:"records_failed"`
}

type FailedSegment struct {
	SegmentID     uuid.UUID `json:"segment_id"`
	SequenceIndex int       `json:"sequence_index"`
	Reason        string    `json:"reason"`
}

// IngestReport itemizes the outcome of one ingestion run. Failures are
// partial: a re-run re-processes only the failed segments because everything
// already written passes the hash check and is skipped.
type IngestReport struct {
	SegmentsWritten int             `json:"segments_written"`
	SegmentsSkipped int             `json:"segments_skipped"`
	SegmentsFailed  []FailedSegment `json:"segments_failed,omitempty"`
	BatchesTotal    int             `json:"batches_total"`
}

type IngestorConfig struct {
	BatchSize   int
	MaxAttempts int
	Concurrency int
	CallTimeout time.Duration
	// OnProgress, when set, observes per-batch progress. Called from multiple
	// goroutines, serialized by the ingestor.
	OnProgress func(Progress)
}

// Ingestor groups segments into bounded batches, embeds each batch once, and
// upserts the resulting records as a single unit. Batches are independent:
// they run concurrently and one failed batch never aborts the run.
type Ingestor struct {
	index vectorstore.Index
	embed *embedding.Service
	cfg   IngestorConfig
}

func NewIngestor(index vectorstore.Index, embed *embedding.Service, cfg IngestorConfig) *Ingestor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	return &Ingestor{index: index, embed: embed, cfg: cfg}
}

// Transient failures worth retrying with backoff. Everything else (dimension
// mismatch, invalid input) fails the batch immediately.
func (ing *Ingestor) retryConfig() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = ing.cfg.MaxAttempts
	cfg.RetryableErrors = []error{
		llm.ErrRateLimited,
		llm.ErrUnavailable,
		vectorstore.ErrIndexUnavailable,
		context.DeadlineExceeded,
	}
	return cfg
}

// EmbedAndStore embeds the document's segments and writes them to the index.
// The returned report is valid even when err is non-nil (cancellation,
// consistency failure): every batch it counts as written is fully upserted.
func (ing *Ingestor) EmbedAndStore(ctx context.Context, documentID uuid.UUID, category models.Category, segments []chunker.Segment) (*IngestReport, error) {
	batches := partition(segments, ing.cfg.BatchSize)

	report := &IngestReport{BatchesTotal: len(batches)}
	if len(batches) == 0 {
		return report, nil
	}

	var (
		mu          sync.Mutex
		batchesDone int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ing.cfg.Concurrency)

	for _, batch := range batches {
		g.Go(func() error {
			written, skipped, batchErr := ing.processBatch(gctx, documentID, category, batch)

			mu.Lock()
			defer mu.Unlock()
			batchesDone++
			report.SegmentsWritten += written
			report.SegmentsSkipped += skipped

			if batchErr != nil {
				if errors.Is(batchErr, vectorstore.ErrDimensionMismatch) {
					// Consistency failure: the run cannot make progress.
					return batchErr
				}
				for _, seg := range batch {
					report.SegmentsFailed = append(report.SegmentsFailed, FailedSegment{
						SegmentID:     vectorstore.SegmentID(documentID, seg.Index),
						SequenceIndex: seg.Index,
						Reason:        batchErr.Error(),
					})
				}
				slog.Warn("batch failed after retries",
					"document_id", documentID,
					"segments", len(batch),
					"error", batchErr,
				)
			}

			if ing.cfg.OnProgress != nil {
				ing.cfg.OnProgress(Progress{
					BatchesDone:    batchesDone,
					BatchesTotal:   report.BatchesTotal,
					RecordsWritten: report.SegmentsWritten,
					RecordsSkipped: report.SegmentsSkipped,
					RecordsFailed:  len(report.SegmentsFailed),
				})
			}
			return nil
		})
	}

	err := g.Wait()
	return report, err
}

// processBatch embeds and upserts one batch, retrying transient failures.
// The upsert is transactional, so from the caller's perspective the batch is
// all-or-nothing.
func (ing *Ingestor) processBatch(ctx context.Context, documentID uuid.UUID, category models.Category, batch []chunker.Segment) (written, skipped int, err error) {
	ids := make([]uuid.UUID, len(batch))
	for i, seg := range batch {
		ids[i] = vectorstore.SegmentID(documentID, seg.Index)
	}

	// Resumability: a batch whose records all exist with unchanged text is a
	// no-op, which lets a re-run resume from the failure point.
	if hashes, hashErr := ing.index.TextHashes(ctx, ids); hashErr == nil {
		upToDate := true
		for i, seg := range batch {
			if hashes[ids[i]] != vectorstore.HashText(seg.Text) {
				upToDate = false
				break
			}
		}
		if upToDate {
			return 0, len(batch), nil
		}
	}

	texts := make([]string, len(batch))
	for i, seg := range batch {
		texts[i] = seg.Text
	}

	err = retry.Do(ctx, ing.retryConfig(), func() error {
		callCtx, cancel := context.WithTimeout(ctx, ing.cfg.CallTimeout)
		defer cancel()

		vectors, embedErr := ing.embed.Embed(callCtx, texts)
		if embedErr != nil {
			return fmt.Errorf("embed batch: %w", embedErr)
		}

		records := make([]vectorstore.Record, len(batch))
		for i, seg := range batch {
			records[i] = vectorstore.Record{
				SegmentID:     ids[i],
				DocumentID:    documentID,
				SequenceIndex: seg.Index,
				Category:      category,
				Text:          seg.Text,
				TextHash:      vectorstore.HashText(seg.Text),
				Embedding:     vectors[i],
			}
		}

		if upsertErr := ing.index.Upsert(callCtx, records); upsertErr != nil {
			return fmt.Errorf("upsert batch: %w", upsertErr)
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return len(batch), 0, nil
}

// partition groups segments into batches of at most size; a batch boundary
// never splits a segment.
func partition(segments []chunker.Segment, size int) [][]chunker.Segment {
	var batches [][]chunker.Segment
	for start := 0; start < len(segments); start += size {
		end := start + size
		if end > len(segments) {
			end = len(segments)
		}
		batches = append(batches, segments[start:end])
	}
	return batches
}
