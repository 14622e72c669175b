package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/studypartner/backend/internal/document"
	"github.com/studypartner/backend/internal/models"
	"github.com/studypartner/backend/internal/queue"
	"github.com/studypartner/backend/internal/rag"
	"github.com/studypartner/backend/pkg/textextract"
)

// DocumentStore is the slice of the document registry the worker touches.
type DocumentStore interface {
	ExtractedText(ctx context.Context, id uuid.UUID) (string, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	RecordIngestResult(ctx context.Context, id uuid.UUID, status string, segmentCount int, lastError string) error
}

var _ DocumentStore = (*document.Service)(nil)

// IngestWorker runs the chunk-embed-upsert pipeline for an uploaded document.
type IngestWorker struct {
	docSvc   DocumentStore
	pipeline rag.Pipeline
}

func NewIngestWorker(docSvc DocumentStore, pipeline rag.Pipeline) *IngestWorker {
	return &IngestWorker{
		docSvc:   docSvc,
		pipeline: pipeline,
	}
}

func (w *IngestWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.DocumentIngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	docID, err := uuid.Parse(payload.DocumentID)
	if err != nil {
		return fmt.Errorf("parse document ID: %w", err)
	}

	text, err := w.docSvc.ExtractedText(ctx, docID)
	if err != nil {
		return fmt.Errorf("load extracted text: %w", err)
	}

	if err := w.docSvc.UpdateStatus(ctx, docID, models.DocStatusIngesting); err != nil {
		return fmt.Errorf("update status to ingesting: %w", err)
	}

	slog.Info("ingesting document", "document_id", docID, "category", payload.Category)

	report, err := w.pipeline.Ingest(ctx, rag.IngestRequest{
		DocumentID: docID,
		Category:   models.Category(payload.Category),
		Pages:      textextract.SplitPages(text),
	})
	if err != nil {
		recErr := w.docSvc.RecordIngestResult(ctx, docID, models.DocStatusFailed, 0, err.Error())
		if recErr != nil {
			slog.Error("failed to record ingest failure", "document_id", docID, "error", recErr)
		}
		return fmt.Errorf("ingest document: %w", err)
	}

	if len(report.SegmentsFailed) > 0 {
		lastError := fmt.Sprintf("%d of %d segments failed: %s",
			len(report.SegmentsFailed),
			report.SegmentsWritten+report.SegmentsSkipped+len(report.SegmentsFailed),
			report.SegmentsFailed[0].Reason)
		if recErr := w.docSvc.RecordIngestResult(ctx, docID, models.DocStatusFailed, report.SegmentsWritten+report.SegmentsSkipped, lastError); recErr != nil {
			slog.Error("failed to record partial ingest", "document_id", docID, "error", recErr)
		}
		// Returning an error hands the task back to the queue's retry policy.
		// The re-run skips already-stored segments by text hash and retries
		// only the failed ones.
		return fmt.Errorf("ingest document %s: %s", docID, lastError)
	}

	if err := w.docSvc.RecordIngestResult(ctx, docID, models.DocStatusReady, report.SegmentsWritten+report.SegmentsSkipped, ""); err != nil {
		return fmt.Errorf("record ingest result: %w", err)
	}

	slog.Info("document ingested",
		"document_id", docID,
		"written", report.SegmentsWritten,
		"skipped", report.SegmentsSkipped,
	)
	return nil
}
