package rag

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studypartner/backend/internal/models"
	"github.com/studypartner/backend/internal/vectorstore"
)

func TestCompose_OrdersAndTagsSources(t *testing.T) {
	c := NewComposer()
	results := []vectorstore.SearchResult{
		{Category: models.CategoryStudyGuide, Text: "S3 stores objects.", Score: 0.9},
		{Category: models.CategoryPracticeTest, Text: "Q: what is S3?", Score: 0.7},
	}

	prompt, _ := c.Compose(QueryContext{Question: "What is S3?", Mode: ModeQuery}, results)

	assert.Contains(t, prompt, systemPrompt)
	assert.Contains(t, prompt, "[Source 1 | study_guide]\nS3 stores objects.")
	assert.Contains(t, prompt, "[Source 2 | practice_test]\nQ: what is S3?")
	assert.Contains(t, prompt, "Question: What is S3?")

	// Retriever order is preserved.
	assert.Less(t, strings.Index(prompt, "[Source 1"), strings.Index(prompt, "[Source 2"))
}

func TestCompose_EmptyResultsStatesNoMaterial(t *testing.T) {
	c := NewComposer()
	prompt, _ := c.Compose(QueryContext{Question: "What is quantum computing?", Mode: ModeQuery}, nil)

	assert.Contains(t, prompt, "No supporting study material was found")
	assert.NotContains(t, prompt, "[Source 1")
}

func TestCompose_QuizPrefersPracticeTests(t *testing.T) {
	c := NewComposer()
	results := []vectorstore.SearchResult{
		{Category: models.CategoryStudyGuide, Text: "guide text"},
		{Category: models.CategoryPracticeTest, Text: "practice text"},
	}

	prompt, used := c.Compose(QueryContext{Question: "quiz me on S3", Mode: ModeQuiz}, results)

	assert.Contains(t, prompt, "practice text")
	assert.NotContains(t, prompt, "guide text")

	// The returned segments mirror the prompt, not the raw retrieval.
	require.Len(t, used, 1)
	assert.Equal(t, "practice text", used[0].Text)
}

func TestCompose_QuizFallsBackWithoutPracticeTests(t *testing.T) {
	c := NewComposer()
	results := []vectorstore.SearchResult{
		{Category: models.CategoryStudyGuide, Text: "guide text"},
	}

	prompt, used := c.Compose(QueryContext{Question: "quiz me on S3", Mode: ModeQuiz}, results)

	assert.Contains(t, prompt, "guide text")
	require.Len(t, used, 1)
}

func TestCompose_ModeInstructions(t *testing.T) {
	c := NewComposer()
	results := []vectorstore.SearchResult{{Category: models.CategoryStudyGuide, Text: "x"}}

	tests := []struct {
		mode Mode
		want string
	}{
		{ModeQuery, "Provide a clear, helpful answer."},
		{ModeExplain, "Walk through the single concept"},
		{ModeCompare, "Compare the services named in the question"},
		{ModeQuiz, "Write practice questions"},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			prompt, _ := c.Compose(QueryContext{Question: "q", Mode: tt.mode}, results)
			assert.Contains(t, prompt, tt.want)
		})
	}
}

func TestCompose_IncludesHistoryTruncated(t *testing.T) {
	c := NewComposer()
	long := ""
	for i := 0; i < 50; i++ {
		long += "0123456789"
	}
	qc := QueryContext{
		Question: "and what about EC2?",
		Mode:     ModeQuery,
		History: []Exchange{
			{Question: "what is S3?", Answer: long, AskedAt: time.Now()},
		},
	}

	prompt, _ := c.Compose(qc, nil)

	assert.Contains(t, prompt, "Previous conversation:")
	assert.Contains(t, prompt, "Q: what is S3?")
	assert.Contains(t, prompt, long[:200]+"...")
	assert.NotContains(t, prompt, long[:201])
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("é", 10)

	got := truncate(s, 4)

	assert.Equal(t, strings.Repeat("é", 4)+"...", got)
	assert.True(t, utf8.ValidString(got))

	// Short strings pass through untouched.
	assert.Equal(t, "héllo", truncate("héllo", 5))
}

func TestParse(t *testing.T) {
	c := NewComposer()

	text, err := c.Parse("  a real answer \n")
	require.NoError(t, err)
	assert.Equal(t, "a real answer", text)

	_, err = c.Parse("   \n\t ")
	assert.ErrorIs(t, err, ErrEmptyGeneration)
}
