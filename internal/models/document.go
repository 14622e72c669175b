package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category labels where a document's material came from. Segments inherit it
// and searches can filter on it.
type Category string

const (
	CategoryStudyGuide   Category = "study_guide"
	CategoryPracticeTest Category = "practice_test"
	CategoryOther        Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryStudyGuide, CategoryPracticeTest, CategoryOther:
		return true
	}
	return false
}

// CategoryForFilename guesses the category from an uploaded file's name,
// matching how practice-test material is typically labelled.
func CategoryForFilename(name string) Category {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "practice") || strings.Contains(lower, "test") {
		return CategoryPracticeTest
	}
	return CategoryStudyGuide
}

type Document struct {
	ID            uuid.UUID `json:"id" db:"id"`
	Title         string    `json:"title" db:"title"`
	Category      Category  `json:"category" db:"category"`
	FileType      string    `json:"file_type,omitempty" db:"file_type"`
	FileSizeBytes int64     `json:"file_size_bytes,omitempty" db:"file_size_bytes"`
	PageCount     int       `json:"page_count" db:"page_count"`
	Status        string    `json:"status" db:"status"`
	SegmentCount  int       `json:"segment_count" db:"segment_count"`
	LastError     string    `json:"last_error,omitempty" db:"last_error"`
	ExtractedText string    `json:"-" db:"extracted_text"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

const (
	DocStatusPending   = "pending"
	DocStatusIngesting = "ingesting"
	DocStatusReady     = "ready"
	DocStatusFailed    = "failed"
)
