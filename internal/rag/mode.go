package rag

import "fmt"

// Mode selects the prompt template for a study question.
type Mode string

const (
	ModeQuery   Mode = "query"
	ModeExplain Mode = "explain"
	ModeCompare Mode = "compare"
	ModeQuiz    Mode = "quiz"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeQuery, ModeExplain, ModeCompare, ModeQuiz:
		return Mode(s), nil
	case "":
		return ModeQuery, nil
	}
	return "", fmt.Errorf("unrecognized mode %q: %w", s, ErrInvalidInput)
}

// TopK returns the retrieval depth for the mode. Explanations and comparisons
// pull more material than a plain question.
func (m Mode) TopK(defaultK int) int {
	switch m {
	case ModeExplain:
		return 6
	case ModeCompare:
		return 8
	}
	return defaultK
}
