package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/studypartner/backend/internal/embedding"
	"github.com/studypartner/backend/internal/llm"
	"github.com/studypartner/backend/internal/models"
	"github.com/studypartner/backend/internal/vectorstore"
	"github.com/studypartner/backend/pkg/chunker"
)

// Pipeline is the capability surface the request layer consumes.
type Pipeline interface {
	Ingest(ctx context.Context, req IngestRequest) (*IngestReport, error)
	Ask(ctx context.Context, req AskRequest) (*Answer, error)
	DeleteDocument(ctx context.Context, documentID uuid.UUID) error
	ListCategories(ctx context.Context) ([]models.Category, error)
}

type IngestRequest struct {
	DocumentID uuid.UUID
	Category   models.Category
	// Pages in document order; they are joined, cleaned, and chunked.
	Pages     []string
	ChunkOpts chunker.Options
}

type AskRequest struct {
	Question  string          `json:"question"`
	Mode      string          `json:"mode,omitempty"`
	Category  models.Category `json:"category,omitempty"`
	TopK      int             `json:"top_k,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
}

// SourceRef points at a stored segment an answer was grounded on.
type SourceRef struct {
	DocumentID    uuid.UUID       `json:"document_id"`
	SequenceIndex int             `json:"sequence_index"`
	Category      models.Category `json:"category"`
	Text          string          `json:"text"`
	Score         float64         `json:"score"`
}

type Answer struct {
	Text      string      `json:"text"`
	Sources   []SourceRef `json:"sources"`
	Model     string      `json:"model,omitempty"`
	SessionID string      `json:"session_id,omitempty"`
}

type PipelineConfig struct {
	ChunkOpts    chunker.Options
	DefaultTopK  int
	GenModel     string
	GenProvider  string
	CallTimeout  time.Duration
	HistoryDepth int // exchanges included in the prompt
	Ingestor     IngestorConfig
}

type pipeline struct {
	index     vectorstore.Index
	embedSvc  *embedding.Service
	gateway   llm.Gateway
	ingestor  *Ingestor
	retriever *Retriever
	composer  *Composer
	sessions  SessionStore // nil disables history
	cfg       PipelineConfig
}

// NewPipeline wires the ingestion and query paths. The expensive handles
// (index connection, gateway) are constructed once at process start and passed
// in explicitly.
func NewPipeline(index vectorstore.Index, embedSvc *embedding.Service, gw llm.Gateway, sessions SessionStore, cfg PipelineConfig) Pipeline {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 5
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.HistoryDepth <= 0 {
		cfg.HistoryDepth = 3
	}
	if cfg.ChunkOpts.ChunkSize <= 0 {
		cfg.ChunkOpts = chunker.DefaultOptions()
	}
	return &pipeline{
		index:     index,
		embedSvc:  embedSvc,
		gateway:   gw,
		ingestor:  NewIngestor(index, embedSvc, cfg.Ingestor),
		retriever: NewRetriever(index, embedSvc),
		composer:  NewComposer(),
		sessions:  sessions,
		cfg:       cfg,
	}
}

func (p *pipeline) Ingest(ctx context.Context, req IngestRequest) (*IngestReport, error) {
	if req.DocumentID == uuid.Nil {
		return nil, fmt.Errorf("document id required: %w", ErrInvalidInput)
	}
	category := req.Category
	if category == "" {
		category = models.CategoryOther
	}
	if !category.Valid() {
		return nil, fmt.Errorf("unknown category %q: %w", category, ErrInvalidInput)
	}

	opts := req.ChunkOpts
	if opts.ChunkSize <= 0 {
		opts = p.cfg.ChunkOpts
	}

	text := chunker.CleanText(strings.Join(req.Pages, "\n\n"))
	segments := chunker.Chunk(text, opts)
	if len(segments) == 0 {
		slog.Warn("document produced no segments", "document_id", req.DocumentID)
		if _, err := p.index.DeleteByDocument(ctx, req.DocumentID, 0); err != nil {
			slog.Warn("failed to clear document segments", "document_id", req.DocumentID, "error", err)
		}
		return &IngestReport{}, nil
	}

	slog.Info("ingesting document",
		"document_id", req.DocumentID,
		"category", category,
		"segments", len(segments),
	)
	report, err := p.ingestor.EmbedAndStore(ctx, req.DocumentID, category, segments)
	if err != nil {
		return report, err
	}

	// A shrunk re-ingestion leaves records past the new segment count behind;
	// drop that stale tail so searches never surface it.
	removed, err := p.index.DeleteByDocument(ctx, req.DocumentID, len(segments))
	if err != nil {
		slog.Warn("failed to trim stale segments", "document_id", req.DocumentID, "error", err)
	} else if removed > 0 {
		slog.Info("trimmed stale segments", "document_id", req.DocumentID, "removed", removed)
	}
	return report, nil
}

func (p *pipeline) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	if documentID == uuid.Nil {
		return fmt.Errorf("document id required: %w", ErrInvalidInput)
	}
	removed, err := p.index.DeleteByDocument(ctx, documentID, 0)
	if err != nil {
		return fmt.Errorf("delete document segments: %w", err)
	}
	slog.Info("deleted document segments", "document_id", documentID, "removed", removed)
	return nil
}

func (p *pipeline) Ask(ctx context.Context, req AskRequest) (*Answer, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, fmt.Errorf("question required: %w", ErrInvalidInput)
	}
	mode, err := ParseMode(req.Mode)
	if err != nil {
		return nil, err
	}
	if req.Category != "" && !req.Category.Valid() {
		return nil, fmt.Errorf("unknown category %q: %w", req.Category, ErrInvalidInput)
	}

	k := req.TopK
	if k <= 0 {
		k = mode.TopK(p.cfg.DefaultTopK)
	}

	results, err := p.retriever.Retrieve(ctx, req.Question, k, vectorstore.Filter{Category: req.Category})
	if err != nil {
		return nil, err
	}

	qc := QueryContext{
		Question: req.Question,
		Mode:     mode,
		Category: req.Category,
		History:  p.recentHistory(ctx, req.SessionID),
	}
	prompt, used := p.composer.Compose(qc, results)

	answer := &Answer{
		Sources:   sourceRefs(used),
		SessionID: req.SessionID,
	}

	genCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	resp, err := p.gateway.Chat(genCtx, llm.ChatRequest{
		Provider: p.cfg.GenProvider,
		Model:    p.cfg.GenModel,
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		// Sources stay attached so the caller can show what was found even
		// though no answer could be composed.
		return answer, fmt.Errorf("generate answer: %w", err)
	}

	text, err := p.composer.Parse(resp.Content)
	if err != nil {
		return answer, err
	}
	answer.Text = text
	answer.Model = resp.Model

	p.recordExchange(ctx, req.SessionID, req.Question, text)
	return answer, nil
}

func (p *pipeline) ListCategories(ctx context.Context) ([]models.Category, error) {
	return p.index.Categories(ctx)
}

func (p *pipeline) recentHistory(ctx context.Context, sessionID string) []Exchange {
	if p.sessions == nil || sessionID == "" {
		return nil
	}
	history, err := p.sessions.History(ctx, sessionID)
	if err != nil {
		slog.Warn("session history unavailable", "session_id", sessionID, "error", err)
		return nil
	}
	if len(history) > p.cfg.HistoryDepth {
		history = history[len(history)-p.cfg.HistoryDepth:]
	}
	return history
}

func (p *pipeline) recordExchange(ctx context.Context, sessionID, question, answer string) {
	if p.sessions == nil || sessionID == "" {
		return
	}
	ex := Exchange{Question: question, Answer: answer, AskedAt: time.Now().UTC()}
	if err := p.sessions.Append(ctx, sessionID, ex); err != nil {
		slog.Warn("failed to record session exchange", "session_id", sessionID, "error", err)
	}
}

func sourceRefs(results []vectorstore.SearchResult) []SourceRef {
	refs := make([]SourceRef, len(results))
	for i, r := range results {
		refs[i] = SourceRef{
			DocumentID:    r.DocumentID,
			SequenceIndex: r.SequenceIndex,
			Category:      r.Category,
			Text:          truncate(r.Text, 300),
			Score:         r.Score,
		}
	}
	return refs
}
