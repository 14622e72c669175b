package rag

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studypartner/backend/internal/embedding"
	"github.com/studypartner/backend/internal/llm"
	"github.com/studypartner/backend/internal/models"
	"github.com/studypartner/backend/internal/vectorstore"
	"github.com/studypartner/backend/pkg/chunker"
)

const testDim = 4

func testSegments(n int) []chunker.Segment {
	segments := make([]chunker.Segment, n)
	for i := range segments {
		segments[i] = chunker.Segment{
			Text:  strings.Repeat("x", i+1) + " segment-marker-" + string(rune('a'+i)),
			Index: i,
		}
	}
	return segments
}

func testIngestor(gw *fakeGateway, idx vectorstore.Index, batchSize int) *Ingestor {
	return NewIngestor(idx, embedding.NewService(gw, "test-model"), IngestorConfig{
		BatchSize:   batchSize,
		MaxAttempts: 2,
		Concurrency: 1,
		CallTimeout: time.Second,
	})
}

func TestIngestor_WritesAllSegments(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway(testDim)
	idx := vectorstore.NewMemoryIndex("test-model", testDim)
	ing := testIngestor(gw, idx, 2)

	report, err := ing.EmbedAndStore(ctx, uuid.New(), models.CategoryStudyGuide, testSegments(5))
	require.NoError(t, err)

	assert.Equal(t, 5, report.SegmentsWritten)
	assert.Equal(t, 0, report.SegmentsSkipped)
	assert.Empty(t, report.SegmentsFailed)
	assert.Equal(t, 3, report.BatchesTotal)
	assert.Equal(t, 5, idx.Len())
}

func TestIngestor_ReingestUnchangedIsNoOp(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway(testDim)
	idx := vectorstore.NewMemoryIndex("test-model", testDim)
	ing := testIngestor(gw, idx, 2)

	docID := uuid.New()
	segments := testSegments(6)

	_, err := ing.EmbedAndStore(ctx, docID, models.CategoryStudyGuide, segments)
	require.NoError(t, err)
	embedCallsAfterFirst := gw.embedCalls

	report, err := ing.EmbedAndStore(ctx, docID, models.CategoryStudyGuide, segments)
	require.NoError(t, err)

	assert.Equal(t, 0, report.SegmentsWritten, "unchanged document must write nothing")
	assert.Equal(t, 6, report.SegmentsSkipped)
	assert.Equal(t, embedCallsAfterFirst, gw.embedCalls, "no embedding calls on a no-op re-run")
	assert.Equal(t, 6, idx.Len())
}

func TestIngestor_FailureIsolationAndResume(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway(testDim)
	idx := vectorstore.NewMemoryIndex("test-model", testDim)
	ing := testIngestor(gw, idx, 2)

	docID := uuid.New()
	segments := testSegments(6) // batches: [0,1] [2,3] [4,5]

	// Batch 2 (segment index 2 carries marker "c") fails past the retry budget.
	gw.embedFailWhen = func(input []string) bool { return batchContains(input, "segment-marker-c") }
	gw.embedFailErr = llm.ErrRateLimited
	gw.failuresLeft = 10

	report, err := ing.EmbedAndStore(ctx, docID, models.CategoryStudyGuide, segments)
	require.NoError(t, err, "one bad batch must not abort the run")

	assert.Equal(t, 4, report.SegmentsWritten)
	require.Len(t, report.SegmentsFailed, 2)
	assert.Equal(t, 2, report.SegmentsFailed[0].SequenceIndex)
	assert.Contains(t, report.SegmentsFailed[0].Reason, "rate limited")
	assert.Equal(t, 4, idx.Len())

	// Re-run with the failure gone: only the failed batch is re-processed.
	gw.embedFailWhen = nil
	report, err = ing.EmbedAndStore(ctx, docID, models.CategoryStudyGuide, segments)
	require.NoError(t, err)

	assert.Equal(t, 2, report.SegmentsWritten)
	assert.Equal(t, 4, report.SegmentsSkipped)
	assert.Empty(t, report.SegmentsFailed)
	assert.Equal(t, 6, idx.Len(), "union of both runs, no duplicates")
}

func TestIngestor_RetriesTransientFailure(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway(testDim)
	idx := vectorstore.NewMemoryIndex("test-model", testDim)
	ing := testIngestor(gw, idx, 10)

	// First attempt fails, the retry succeeds.
	gw.embedFailWhen = func([]string) bool { return true }
	gw.embedFailErr = llm.ErrUnavailable
	gw.failuresLeft = 1

	report, err := ing.EmbedAndStore(ctx, uuid.New(), models.CategoryStudyGuide, testSegments(3))
	require.NoError(t, err)
	assert.Equal(t, 3, report.SegmentsWritten)
	assert.Empty(t, report.SegmentsFailed)
}

func TestIngestor_ProgressReported(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway(testDim)
	idx := vectorstore.NewMemoryIndex("test-model", testDim)

	var updates []Progress
	ing := NewIngestor(idx, embedding.NewService(gw, "test-model"), IngestorConfig{
		BatchSize:   2,
		MaxAttempts: 1,
		Concurrency: 1,
		CallTimeout: time.Second,
		OnProgress:  func(p Progress) { updates = append(updates, p) },
	})

	_, err := ing.EmbedAndStore(ctx, uuid.New(), models.CategoryStudyGuide, testSegments(5))
	require.NoError(t, err)

	require.Len(t, updates, 3)
	last := updates[len(updates)-1]
	assert.Equal(t, 3, last.BatchesDone)
	assert.Equal(t, 3, last.BatchesTotal)
	assert.Equal(t, 5, last.RecordsWritten)
	assert.Equal(t, 0, last.RecordsFailed)
}

func TestIngestor_EmptySegments(t *testing.T) {
	gw := newFakeGateway(testDim)
	idx := vectorstore.NewMemoryIndex("test-model", testDim)
	ing := testIngestor(gw, idx, 2)

	report, err := ing.EmbedAndStore(context.Background(), uuid.New(), models.CategoryStudyGuide, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.BatchesTotal)
	assert.Equal(t, 0, gw.embedCalls)
}

func TestPartition_NeverSplitsSegments(t *testing.T) {
	segments := testSegments(7)
	batches := partition(segments, 3)

	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 3)
	assert.Len(t, batches[1], 3)
	assert.Len(t, batches[2], 1)

	total := 0
	for _, b := range batches {
		total += len(b)
	}
	assert.Equal(t, len(segments), total)
}
