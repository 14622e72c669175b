package workers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studypartner/backend/internal/models"
	"github.com/studypartner/backend/internal/queue"
	"github.com/studypartner/backend/internal/rag"
)

type fakeDocStore struct {
	text           string
	statuses       []string
	recordedStatus string
	recordedCount  int
	recordedErr    string
}

func (f *fakeDocStore) ExtractedText(ctx context.Context, id uuid.UUID) (string, error) {
	return f.text, nil
}

func (f *fakeDocStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeDocStore) RecordIngestResult(ctx context.Context, id uuid.UUID, status string, segmentCount int, lastError string) error {
	f.recordedStatus = status
	f.recordedCount = segmentCount
	f.recordedErr = lastError
	return nil
}

type fakePipeline struct {
	report     *rag.IngestReport
	ingestErr  error
	ingestReqs []rag.IngestRequest
}

func (f *fakePipeline) Ingest(ctx context.Context, req rag.IngestRequest) (*rag.IngestReport, error) {
	f.ingestReqs = append(f.ingestReqs, req)
	if f.ingestErr != nil {
		return nil, f.ingestErr
	}
	return f.report, nil
}

func (f *fakePipeline) Ask(ctx context.Context, req rag.AskRequest) (*rag.Answer, error) {
	return nil, nil
}

func (f *fakePipeline) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	return nil
}

func (f *fakePipeline) ListCategories(ctx context.Context) ([]models.Category, error) {
	return nil, nil
}

func ingestTask(t *testing.T, docID uuid.UUID, category string) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(queue.DocumentIngestPayload{
		DocumentID: docID.String(),
		Category:   category,
	})
	require.NoError(t, err)
	return asynq.NewTask(queue.TypeDocumentIngest, payload)
}

func TestIngestWorker_Success(t *testing.T) {
	store := &fakeDocStore{text: "page one\fpage two"}
	pipe := &fakePipeline{report: &rag.IngestReport{SegmentsWritten: 3, SegmentsSkipped: 1}}
	w := NewIngestWorker(store, pipe)

	docID := uuid.New()
	err := w.ProcessTask(context.Background(), ingestTask(t, docID, "study_guide"))
	require.NoError(t, err)

	require.Len(t, pipe.ingestReqs, 1)
	assert.Equal(t, docID, pipe.ingestReqs[0].DocumentID)
	assert.Equal(t, models.CategoryStudyGuide, pipe.ingestReqs[0].Category)
	assert.Equal(t, []string{"page one", "page two"}, pipe.ingestReqs[0].Pages)

	assert.Equal(t, []string{models.DocStatusIngesting}, store.statuses)
	assert.Equal(t, models.DocStatusReady, store.recordedStatus)
	assert.Equal(t, 4, store.recordedCount)
	assert.Empty(t, store.recordedErr)
}

func TestIngestWorker_PartialFailureReturnsError(t *testing.T) {
	store := &fakeDocStore{text: "some text"}
	pipe := &fakePipeline{report: &rag.IngestReport{
		SegmentsWritten: 2,
		SegmentsFailed: []rag.FailedSegment{
			{SequenceIndex: 2, Reason: "rate limited"},
		},
	}}
	w := NewIngestWorker(store, pipe)

	// The error hands the task back to the queue so its retry policy re-runs
	// the ingestion; already-stored segments are skipped by hash on the re-run.
	err := w.ProcessTask(context.Background(), ingestTask(t, uuid.New(), "study_guide"))
	require.Error(t, err)

	assert.Equal(t, models.DocStatusFailed, store.recordedStatus)
	assert.Equal(t, 2, store.recordedCount)
	assert.Contains(t, store.recordedErr, "1 of 3 segments failed")
	assert.Contains(t, store.recordedErr, "rate limited")
}

func TestIngestWorker_PipelineErrorRecordsFailure(t *testing.T) {
	store := &fakeDocStore{text: "some text"}
	pipe := &fakePipeline{ingestErr: rag.ErrInvalidInput}
	w := NewIngestWorker(store, pipe)

	err := w.ProcessTask(context.Background(), ingestTask(t, uuid.New(), "study_guide"))
	require.ErrorIs(t, err, rag.ErrInvalidInput)
	assert.Equal(t, models.DocStatusFailed, store.recordedStatus)
}

func TestIngestWorker_BadPayload(t *testing.T) {
	w := NewIngestWorker(&fakeDocStore{}, &fakePipeline{})

	err := w.ProcessTask(context.Background(), asynq.NewTask(queue.TypeDocumentIngest, []byte("not json")))
	assert.Error(t, err)
}
