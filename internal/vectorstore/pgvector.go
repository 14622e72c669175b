package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/studypartner/backend/internal/models"
)

// PgVectorIndex stores segment records in Postgres with the pgvector
// extension, cosine distance.
type PgVectorIndex struct {
	db        *pgxpool.Pool
	model     string
	dimension int
}

func NewPgVectorIndex(db *pgxpool.Pool, embeddingModel string, dimension int) *PgVectorIndex {
	return &PgVectorIndex{db: db, model: embeddingModel, dimension: dimension}
}

// EnsureReady creates the segments table for the configured dimension and
// records the embedding space. A second call with a different model or
// dimension fails rather than silently mixing spaces.
func (s *PgVectorIndex) EnsureReady(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	if err != nil {
		return fmt.Errorf("enable pgvector: %w: %v", ErrIndexUnavailable, err)
	}

	_, err = s.db.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS segments (
			id UUID PRIMARY KEY,
			document_id UUID NOT NULL,
			sequence_index INT NOT NULL,
			category TEXT NOT NULL,
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT now()
		)`, s.dimension))
	if err != nil {
		return fmt.Errorf("create segments table: %w: %v", ErrIndexUnavailable, err)
	}

	_, err = s.db.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_segments_document
		ON segments (document_id, sequence_index)`)
	if err != nil {
		return fmt.Errorf("create segments document index: %w: %v", ErrIndexUnavailable, err)
	}

	_, err = s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS index_meta (
			id INT PRIMARY KEY CHECK (id = 1),
			embedding_model TEXT NOT NULL,
			dimension INT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("create index_meta table: %w: %v", ErrIndexUnavailable, err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO index_meta (id, embedding_model, dimension)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO NOTHING`,
		s.model, s.dimension)
	if err != nil {
		return fmt.Errorf("register embedding space: %w: %v", ErrIndexUnavailable, err)
	}

	info, err := s.Info(ctx)
	if err != nil {
		return err
	}
	if info.EmbeddingModel != s.model || info.Dimension != s.dimension {
		return fmt.Errorf("index was created for model %q dimension %d, configured %q dimension %d",
			info.EmbeddingModel, info.Dimension, s.model, s.dimension)
	}
	return nil
}

func (s *PgVectorIndex) Info(ctx context.Context) (Info, error) {
	var info Info
	err := s.db.QueryRow(ctx,
		`SELECT embedding_model, dimension FROM index_meta WHERE id = 1`,
	).Scan(&info.EmbeddingModel, &info.Dimension)
	if err != nil {
		return Info{}, fmt.Errorf("read index metadata: %w: %v", ErrIndexUnavailable, err)
	}
	return info, nil
}

// Upsert writes all records in one transaction, so a cancelled ingestion run
// never leaves a torn batch behind.
func (s *PgVectorIndex) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := checkDimensions(records, s.dimension); err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w: %v", ErrIndexUnavailable, err)
	}
	defer tx.Rollback(ctx)

	for _, r := range records {
		_, err := tx.Exec(ctx,
			`INSERT INTO segments (id, document_id, sequence_index, category, content, content_hash, embedding, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, now())
			 ON CONFLICT (id) DO UPDATE
			 SET content = $5, content_hash = $6, embedding = $7, updated_at = now()`,
			r.SegmentID, r.DocumentID, r.SequenceIndex, r.Category, r.Text, r.TextHash,
			pgvector.NewVector(r.Embedding),
		)
		if err != nil {
			return fmt.Errorf("upsert segment %d: %w: %v", r.SequenceIndex, ErrIndexUnavailable, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert: %w: %v", ErrIndexUnavailable, err)
	}
	return nil
}

func (s *PgVectorIndex) Search(ctx context.Context, query []float32, k int, filter Filter) ([]SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("search k must be positive, got %d", k)
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("query has dimension %d, index expects %d: %w",
			len(query), s.dimension, ErrDimensionMismatch)
	}

	embedding := pgvector.NewVector(query)

	// Ties on score break on ascending id for deterministic ordering.
	sql := `SELECT id, document_id, sequence_index, category, content,
	               1 - (embedding <=> $1) AS score
	        FROM segments`
	args := []any{embedding, k}
	if filter.Category != "" {
		sql += ` WHERE category = $3`
		args = append(args, filter.Category)
	}
	sql += ` ORDER BY embedding <=> $1, id LIMIT $2`

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w: %v", ErrIndexUnavailable, err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.SegmentID, &r.DocumentID, &r.SequenceIndex, &r.Category, &r.Text, &r.Score); err != nil {
			return nil, fmt.Errorf("scan result: %w: %v", ErrIndexUnavailable, err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w: %v", ErrIndexUnavailable, err)
	}
	return results, nil
}

func (s *PgVectorIndex) TextHashes(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]string{}, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, content_hash FROM segments WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch hashes: %w: %v", ErrIndexUnavailable, err)
	}
	defer rows.Close()

	hashes := make(map[uuid.UUID]string, len(ids))
	for rows.Next() {
		var id uuid.UUID
		var hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, fmt.Errorf("scan hash: %w: %v", ErrIndexUnavailable, err)
		}
		hashes[id] = hash
	}
	return hashes, rows.Err()
}

func (s *PgVectorIndex) DeleteByDocument(ctx context.Context, documentID uuid.UUID, fromSequence int) (int, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM segments WHERE document_id = $1 AND sequence_index >= $2`,
		documentID, fromSequence)
	if err != nil {
		return 0, fmt.Errorf("delete document segments: %w: %v", ErrIndexUnavailable, err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PgVectorIndex) Categories(ctx context.Context) ([]models.Category, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT category FROM segments ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w: %v", ErrIndexUnavailable, err)
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w: %v", ErrIndexUnavailable, err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}
