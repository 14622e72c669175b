package rag

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studypartner/backend/internal/embedding"
	"github.com/studypartner/backend/internal/llm"
	"github.com/studypartner/backend/internal/models"
	"github.com/studypartner/backend/internal/vectorstore"
	"github.com/studypartner/backend/pkg/chunker"
)

func testPipeline(gw *fakeGateway, sessions SessionStore) (Pipeline, vectorstore.Index) {
	idx := vectorstore.NewMemoryIndex("test-model", testDim)
	svc := embedding.NewService(gw, "test-model")
	p := NewPipeline(idx, svc, gw, sessions, PipelineConfig{
		DefaultTopK: 5,
		GenModel:    "fake-model",
		ChunkOpts:   chunker.Options{ChunkSize: 100, ChunkOverlap: 0.2},
		Ingestor:    IngestorConfig{BatchSize: 10, MaxAttempts: 1},
	})
	return p, idx
}

func TestPipeline_IngestThenAsk(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway(testDim)
	gw.chatContent = "S3 is AWS object storage [Source 1]."
	p, idx := testPipeline(gw, nil)

	docID := uuid.New()
	report, err := p.Ingest(ctx, IngestRequest{
		DocumentID: docID,
		Category:   models.CategoryStudyGuide,
		Pages:      []string{"Amazon S3 is an object storage service offering scalability, availability, security, and performance for any amount of data."},
	})
	require.NoError(t, err)
	assert.Greater(t, report.SegmentsWritten, 0)
	assert.Empty(t, report.SegmentsFailed)

	answer, err := p.Ask(ctx, AskRequest{Question: "What is Amazon S3?"})
	require.NoError(t, err)
	assert.Equal(t, "S3 is AWS object storage [Source 1].", answer.Text)
	assert.Equal(t, "fake-model", answer.Model)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, docID, answer.Sources[0].DocumentID)

	mem := idx.(*vectorstore.MemoryIndex)
	assert.Equal(t, report.SegmentsWritten, mem.Len())
}

func TestPipeline_ReingestTrimsStaleSegments(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway(testDim)
	p, idx := testPipeline(gw, nil)

	// A previous, longer version of the document left several segments behind.
	docID := uuid.New()
	seedIndex(t, idx, docID, []string{"old part one", "old part two", "old part three"}, models.CategoryStudyGuide)
	mem := idx.(*vectorstore.MemoryIndex)
	require.Equal(t, 3, mem.Len())

	report, err := p.Ingest(ctx, IngestRequest{
		DocumentID: docID,
		Category:   models.CategoryStudyGuide,
		Pages:      []string{"The document shrank to a single short section."},
	})
	require.NoError(t, err)
	require.Equal(t, 1, report.SegmentsWritten)

	// Only the fresh segment survives; the stale tail is gone.
	assert.Equal(t, 1, mem.Len())
}

func TestPipeline_DeleteDocument(t *testing.T) {
	ctx := context.Background()
	p, idx := testPipeline(newFakeGateway(testDim), nil)

	docID := uuid.New()
	otherID := uuid.New()
	seedIndex(t, idx, docID, []string{"one", "two"}, models.CategoryStudyGuide)
	seedIndex(t, idx, otherID, []string{"keep me"}, models.CategoryStudyGuide)

	require.NoError(t, p.DeleteDocument(ctx, docID))

	mem := idx.(*vectorstore.MemoryIndex)
	assert.Equal(t, 1, mem.Len())

	err := p.DeleteDocument(ctx, uuid.Nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPipeline_QuizSourcesMatchPrompt(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway(testDim)
	gw.chatContent = "Q: what is S3? A: object storage."
	p, idx := testPipeline(gw, nil)

	guideID := uuid.New()
	practiceID := uuid.New()
	seedIndex(t, idx, guideID, []string{"S3 stores objects"}, models.CategoryStudyGuide)
	seedIndex(t, idx, practiceID, []string{"Q: what does S3 store?"}, models.CategoryPracticeTest)

	answer, err := p.Ask(ctx, AskRequest{Question: "quiz me on S3", Mode: "quiz"})
	require.NoError(t, err)

	// Quiz mode narrows the prompt to practice material; the cited sources
	// must narrow with it.
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, practiceID, answer.Sources[0].DocumentID)
	assert.Equal(t, models.CategoryPracticeTest, answer.Sources[0].Category)
}

func TestPipeline_IngestValidation(t *testing.T) {
	ctx := context.Background()
	p, _ := testPipeline(newFakeGateway(testDim), nil)

	_, err := p.Ingest(ctx, IngestRequest{Category: models.CategoryStudyGuide, Pages: []string{"text"}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = p.Ingest(ctx, IngestRequest{DocumentID: uuid.New(), Category: "lecture_notes", Pages: []string{"text"}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPipeline_IngestEmptyDocument(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway(testDim)
	p, _ := testPipeline(gw, nil)

	report, err := p.Ingest(ctx, IngestRequest{
		DocumentID: uuid.New(),
		Category:   models.CategoryStudyGuide,
		Pages:      []string{"   ", "\n\n"},
	})
	require.NoError(t, err)
	assert.Zero(t, report.SegmentsWritten)
	assert.Zero(t, gw.embedCalls)
}

func TestPipeline_AskValidation(t *testing.T) {
	ctx := context.Background()
	p, _ := testPipeline(newFakeGateway(testDim), nil)

	_, err := p.Ask(ctx, AskRequest{Question: "  "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = p.Ask(ctx, AskRequest{Question: "valid", Mode: "summarize"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = p.Ask(ctx, AskRequest{Question: "valid", Category: "lecture_notes"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPipeline_AskAgainstEmptyIndex(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway(testDim)
	gw.chatContent = "The study materials do not cover this topic."
	p, _ := testPipeline(gw, nil)

	answer, err := p.Ask(ctx, AskRequest{Question: "What is quantum entanglement?"})
	require.NoError(t, err)
	assert.Empty(t, answer.Sources)
	assert.Equal(t, "The study materials do not cover this topic.", answer.Text)
}

func TestPipeline_GenerationErrorKeepsSources(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway(testDim)
	gw.chatErr = llm.ErrUnavailable
	p, idx := testPipeline(gw, nil)

	docID := uuid.New()
	seedIndex(t, idx, docID, []string{"S3 is object storage"}, models.CategoryStudyGuide)

	answer, err := p.Ask(ctx, AskRequest{Question: "What is S3?"})
	require.ErrorIs(t, err, llm.ErrUnavailable)
	require.NotNil(t, answer)
	assert.Empty(t, answer.Text)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, docID, answer.Sources[0].DocumentID)
}

func TestPipeline_EmptyGenerationIsAnError(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway(testDim)
	gw.chatContent = "   "
	p, idx := testPipeline(gw, nil)

	seedIndex(t, idx, uuid.New(), []string{"S3 is object storage"}, models.CategoryStudyGuide)

	answer, err := p.Ask(ctx, AskRequest{Question: "What is S3?"})
	require.ErrorIs(t, err, ErrEmptyGeneration)
	require.NotNil(t, answer)
	assert.NotEmpty(t, answer.Sources)
}

func TestPipeline_SessionHistoryFlows(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway(testDim)
	gw.chatContent = "first answer"
	sessions := newMemorySessions()
	p, idx := testPipeline(gw, sessions)

	seedIndex(t, idx, uuid.New(), []string{"S3 is object storage"}, models.CategoryStudyGuide)

	_, err := p.Ask(ctx, AskRequest{Question: "What is S3?", SessionID: "sess-1"})
	require.NoError(t, err)

	history, err := sessions.History(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "What is S3?", history[0].Question)
	assert.Equal(t, "first answer", history[0].Answer)
}

func TestPipeline_FailedGenerationIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway(testDim)
	gw.chatErr = llm.ErrRateLimited
	sessions := newMemorySessions()
	p, _ := testPipeline(gw, sessions)

	_, err := p.Ask(ctx, AskRequest{Question: "What is S3?", SessionID: "sess-1"})
	require.Error(t, err)

	history, err := sessions.History(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestPipeline_ListCategories(t *testing.T) {
	ctx := context.Background()
	p, idx := testPipeline(newFakeGateway(testDim), nil)

	seedIndex(t, idx, uuid.New(), []string{"guide"}, models.CategoryStudyGuide)
	seedIndex(t, idx, uuid.New(), []string{"practice"}, models.CategoryPracticeTest)

	categories, err := p.ListCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Category{models.CategoryPracticeTest, models.CategoryStudyGuide}, categories)
}

func TestMode_TopK(t *testing.T) {
	assert.Equal(t, 5, ModeQuery.TopK(5))
	assert.Equal(t, 6, ModeExplain.TopK(5))
	assert.Equal(t, 8, ModeCompare.TopK(5))
	assert.Equal(t, 5, ModeQuiz.TopK(5))
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeQuery, mode)

	mode, err = ParseMode("quiz")
	require.NoError(t, err)
	assert.Equal(t, ModeQuiz, mode)

	_, err = ParseMode("summarize")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
