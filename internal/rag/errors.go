package rag

import "errors"

var (
	// ErrInvalidInput marks malformed requests (empty question, bad mode,
	// k <= 0). Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmbeddingSpaceMismatch means the configured embedding model differs
	// from the one the index was created with. Scores across spaces are
	// meaningless, so the operation fails fast.
	ErrEmbeddingSpaceMismatch = errors.New("embedding space mismatch")

	// ErrEmptyGeneration means the generation step returned no usable text.
	// Surfaced to the caller with retrieved sources still attached.
	ErrEmptyGeneration = errors.New("empty generation output")
)
