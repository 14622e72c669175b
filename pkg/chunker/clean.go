package chunker

import (
	"regexp"
	"strings"
)

// Reserved sequences that embedding tokenizers treat as control tokens.
var specialTokens = []string{
	"<|endoftext|>",
	"<|startoftext|>",
	"<|im_start|>",
	"<|im_end|>",
	"<|system|>",
	"<|user|>",
	"<|assistant|>",
}

var specialTokenPattern = regexp.MustCompile(`<\|[^>]*\|>`)

// CleanText strips tokenizer control sequences and collapses runs of
// whitespace. Cleaning already-clean text is a no-op, so the pipeline can
// apply it unconditionally before chunking.
func CleanText(text string) string {
	cleaned := text
	for _, token := range specialTokens {
		cleaned = strings.ReplaceAll(cleaned, token, "")
	}
	cleaned = specialTokenPattern.ReplaceAllString(cleaned, "")
	return strings.Join(strings.Fields(cleaned), " ")
}
