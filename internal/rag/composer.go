package rag

import (
	"fmt"
	"strings"

	"github.com/studypartner/backend/internal/models"
	"github.com/studypartner/backend/internal/vectorstore"
)

const systemPrompt = `You are an expert certification study partner. Answer using only the study material provided below, and attribute claims to their sources by the [Source N] tags. If the material does not cover the question, say so rather than guessing.`

// QueryContext carries one request through prompt assembly. Ephemeral, never
// persisted.
type QueryContext struct {
	Question string
	Mode     Mode
	Category models.Category
	History  []Exchange
}

// Composer assembles grounded prompts from retrieved segments and validates
// generation output.
type Composer struct{}

func NewComposer() *Composer { return &Composer{} }

// Compose builds the generation prompt. Retrieved segment text is embedded
// verbatim, in retriever order, each tagged with its source category. When no
// material was retrieved the prompt says so explicitly instead of fabricating
// context. The returned slice holds the segments the prompt actually cites;
// quiz mode may narrow it, so callers attribute sources from it rather than
// from the raw retrieval.
func (c *Composer) Compose(qc QueryContext, results []vectorstore.SearchResult) (string, []vectorstore.SearchResult) {
	if qc.Mode == ModeQuiz {
		results = preferPracticeTests(results)
	}

	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\n")

	if len(results) == 0 {
		sb.WriteString("No supporting study material was found for this question. ")
		sb.WriteString("Say that the study materials do not cover it; do not invent an answer from general knowledge.\n")
	} else {
		sb.WriteString("Study material:\n\n")
		for i, r := range results {
			fmt.Fprintf(&sb, "[Source %d | %s]\n%s\n\n", i+1, r.Category, r.Text)
		}
	}

	if len(qc.History) > 0 {
		sb.WriteString("Previous conversation:\n")
		for _, ex := range qc.History {
			fmt.Fprintf(&sb, "Q: %s\nA: %s\n", ex.Question, truncate(ex.Answer, 200))
		}
		sb.WriteString("\n")
	}

	sb.WriteString(modeInstruction(qc.Mode))
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Question: %s\n", qc.Question)

	return sb.String(), results
}

// Parse validates the generation output. Anything but non-empty text is a
// generation error, never silently replaced with a default answer.
func (c *Composer) Parse(output string) (string, error) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return "", ErrEmptyGeneration
	}
	return trimmed, nil
}

func modeInstruction(mode Mode) string {
	switch mode {
	case ModeExplain:
		return "Walk through the single concept in the question in detail: what it is, its key features, common use cases, and exam tips."
	case ModeCompare:
		return "Compare the services named in the question using the material above. Structure the answer as: key differences, when to use each, and common use cases."
	case ModeQuiz:
		return "Write practice questions grounded in the material above, each followed by its answer and a short explanation. Use a Q:/A: format."
	}
	return "Provide a clear, helpful answer."
}

// preferPracticeTests keeps only practice_test segments when any are present;
// otherwise quiz mode falls back to all retrieved material.
func preferPracticeTests(results []vectorstore.SearchResult) []vectorstore.SearchResult {
	var practice []vectorstore.SearchResult
	for _, r := range results {
		if r.Category == models.CategoryPracticeTest {
			practice = append(practice, r)
		}
	}
	if len(practice) > 0 {
		return practice
	}
	return results
}

// truncate shortens s to maxLen runes, never splitting a multi-byte character.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
