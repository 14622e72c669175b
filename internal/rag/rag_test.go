package rag

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/studypartner/backend/internal/llm"
)

// fakeGateway scripts embedding and chat behavior for pipeline tests.
type fakeGateway struct {
	mu         sync.Mutex
	dimension  int
	embedCalls int
	chatCalls  int

	// embedFail makes Embed fail with the given error while the predicate
	// matches; failuresLeft bounds how many times.
	embedFailWhen func(input []string) bool
	embedFailErr  error
	failuresLeft  int

	chatContent string
	chatErr     error
}

func newFakeGateway(dimension int) *fakeGateway {
	return &fakeGateway{dimension: dimension, chatContent: "a grounded answer"}
}

func (g *fakeGateway) Provider(name string) (llm.Provider, error) {
	return nil, fmt.Errorf("no providers in fake gateway")
}

func (g *fakeGateway) Embed(ctx context.Context, req llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.embedCalls++

	if g.embedFailWhen != nil && g.failuresLeft > 0 && g.embedFailWhen(req.Input) {
		g.failuresLeft--
		return nil, g.embedFailErr
	}

	embeddings := make([][]float32, len(req.Input))
	for i, text := range req.Input {
		embeddings[i] = embedVec(text, g.dimension)
	}
	return &llm.EmbeddingResponse{
		Provider:   "fake",
		Model:      req.Model,
		Embeddings: embeddings,
	}, nil
}

func (g *fakeGateway) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chatCalls++

	if g.chatErr != nil {
		return nil, g.chatErr
	}
	return &llm.ChatResponse{
		Provider: "fake",
		Model:    "fake-model",
		Content:  g.chatContent,
	}, nil
}

// embedVec derives a deterministic vector from text so identical text always
// lands at the same point.
func embedVec(text string, dimension int) []float32 {
	vec := make([]float32, dimension)
	for i, b := range []byte(text) {
		vec[i%dimension] += float32(b) / 255
	}
	return vec
}

// memorySessions is an in-process SessionStore for tests.
type memorySessions struct {
	mu       sync.Mutex
	sessions map[string][]Exchange
}

func newMemorySessions() *memorySessions {
	return &memorySessions{sessions: make(map[string][]Exchange)}
}

func (s *memorySessions) History(ctx context.Context, sessionID string) ([]Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Exchange(nil), s.sessions[sessionID]...), nil
}

func (s *memorySessions) Append(ctx context.Context, sessionID string, ex Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], ex)
	return nil
}

func batchContains(input []string, marker string) bool {
	for _, s := range input {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
