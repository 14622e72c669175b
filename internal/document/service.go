package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studypartner/backend/internal/models"
)

// ErrNotFound is returned when no document matches the requested ID.
var ErrNotFound = errors.New("document not found")

// Service is the registry of uploaded study documents. Extracted text is
// stored alongside the row so the ingestion worker can pick it up without
// re-parsing the original file.
type Service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

type CreateRequest struct {
	Title         string
	Category      models.Category
	FileType      string
	FileSizeBytes int64
	PageCount     int
	ExtractedText string
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Document, error) {
	doc := &models.Document{
		ID:            uuid.New(),
		Title:         req.Title,
		Category:      req.Category,
		FileType:      req.FileType,
		FileSizeBytes: req.FileSizeBytes,
		PageCount:     req.PageCount,
		Status:        models.DocStatusPending,
		ExtractedText: req.ExtractedText,
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO documents (id, title, category, file_type, file_size_bytes, page_count, status, extracted_text)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		doc.ID, doc.Title, doc.Category, doc.FileType, doc.FileSizeBytes, doc.PageCount, doc.Status, doc.ExtractedText,
	).Scan(&doc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	return doc, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	err := s.db.QueryRow(ctx,
		`SELECT id, title, category, file_type, file_size_bytes, page_count, status, segment_count, last_error, created_at
		 FROM documents WHERE id = $1`,
		id,
	).Scan(&doc.ID, &doc.Title, &doc.Category, &doc.FileType, &doc.FileSizeBytes, &doc.PageCount,
		&doc.Status, &doc.SegmentCount, &doc.LastError, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

// ExtractedText loads just the stored page text for ingestion.
func (s *Service) ExtractedText(ctx context.Context, id uuid.UUID) (string, error) {
	var text string
	err := s.db.QueryRow(ctx, "SELECT extracted_text FROM documents WHERE id = $1", id).Scan(&text)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get extracted text: %w", err)
	}
	return text, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]models.Document, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, title, category, file_type, file_size_bytes, page_count, status, segment_count, last_error, created_at
		 FROM documents ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.Title, &d.Category, &d.FileType, &d.FileSizeBytes, &d.PageCount,
			&d.Status, &d.SegmentCount, &d.LastError, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := s.db.Exec(ctx, "UPDATE documents SET status = $1 WHERE id = $2", status, id)
	return err
}

// RecordIngestResult transitions the document out of the ingesting state and
// records what the run produced.
func (s *Service) RecordIngestResult(ctx context.Context, id uuid.UUID, status string, segmentCount int, lastError string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE documents SET status = $1, segment_count = $2, last_error = $3, ingested_at = $4 WHERE id = $5`,
		status, segmentCount, lastError, time.Now().UTC(), id,
	)
	return err
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
