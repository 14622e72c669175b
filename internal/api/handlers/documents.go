package handlers

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/studypartner/backend/internal/document"
	"github.com/studypartner/backend/internal/models"
	"github.com/studypartner/backend/internal/queue"
	"github.com/studypartner/backend/internal/rag"
	"github.com/studypartner/backend/pkg/textextract"
)

// DocumentStore is the slice of the document registry the handler touches.
type DocumentStore interface {
	Create(ctx context.Context, req document.CreateRequest) (*models.Document, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	List(ctx context.Context, limit, offset int) ([]models.Document, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	RecordIngestResult(ctx context.Context, id uuid.UUID, status string, segmentCount int, lastError string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

var _ DocumentStore = (*document.Service)(nil)

// IngestEnqueuer hands embedding work to the background queue.
type IngestEnqueuer interface {
	EnqueueDocumentIngest(payload queue.DocumentIngestPayload) error
}

var _ IngestEnqueuer = (*queue.Client)(nil)

type DocumentHandler struct {
	svc      DocumentStore
	queue    IngestEnqueuer // nil means ingest inline in the request
	pipeline rag.Pipeline
}

// NewDocumentHandler builds the document endpoints. A nil enqueuer switches
// uploads to inline ingestion, for deployments whose vector index lives in
// process and cannot be shared with a worker.
func NewDocumentHandler(svc DocumentStore, qc IngestEnqueuer, pipeline rag.Pipeline) *DocumentHandler {
	return &DocumentHandler{svc: svc, queue: qc, pipeline: pipeline}
}

// Upload accepts a multipart PDF or TXT, extracts its text synchronously, and
// enqueues the embedding work. The response carries the pending document;
// poll the status endpoint to see it become ready.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil { // 32MB max
		writeErr(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "file required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}

	ext := filepath.Ext(header.Filename)
	extracted, err := textextract.Extract(bytes.NewReader(data), int64(len(data)), ext)
	if err != nil {
		writeErr(w, http.StatusUnprocessableEntity, "extract text: "+err.Error())
		return
	}

	title := r.FormValue("title")
	if title == "" {
		title = header.Filename
	}
	category := models.Category(r.FormValue("category"))
	if category == "" {
		category = models.CategoryForFilename(header.Filename)
	}
	if !category.Valid() {
		writeErr(w, http.StatusBadRequest, "unknown category")
		return
	}

	doc, err := h.svc.Create(r.Context(), document.CreateRequest{
		Title:         title,
		Category:      category,
		FileType:      ext,
		FileSizeBytes: header.Size,
		PageCount:     len(extracted.Pages),
		ExtractedText: extracted.Serialize(),
	})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	if h.queue == nil {
		h.ingestInline(r.Context(), w, doc, extracted.Pages)
		return
	}

	if err := h.queue.EnqueueDocumentIngest(queue.DocumentIngestPayload{
		DocumentID: doc.ID.String(),
		Category:   string(doc.Category),
	}); err != nil {
		writeErr(w, http.StatusInternalServerError, "enqueue ingestion: "+err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

// ingestInline runs the embedding pipeline inside the upload request and
// responds with the finished document.
func (h *DocumentHandler) ingestInline(ctx context.Context, w http.ResponseWriter, doc *models.Document, pages []string) {
	if err := h.svc.UpdateStatus(ctx, doc.ID, models.DocStatusIngesting); err != nil {
		writeErr(w, http.StatusInternalServerError, "update status: "+err.Error())
		return
	}

	report, err := h.pipeline.Ingest(ctx, rag.IngestRequest{
		DocumentID: doc.ID,
		Category:   doc.Category,
		Pages:      pages,
	})
	if err != nil {
		if recErr := h.svc.RecordIngestResult(ctx, doc.ID, models.DocStatusFailed, 0, err.Error()); recErr != nil {
			slog.Warn("failed to record ingest failure", "document_id", doc.ID, "error", recErr)
		}
		writeErr(w, http.StatusInternalServerError, "ingest document: "+err.Error())
		return
	}

	status := models.DocStatusReady
	lastError := ""
	if len(report.SegmentsFailed) > 0 {
		status = models.DocStatusFailed
		lastError = report.SegmentsFailed[0].Reason
	}
	if err := h.svc.RecordIngestResult(ctx, doc.ID, status, report.SegmentsWritten+report.SegmentsSkipped, lastError); err != nil {
		slog.Warn("failed to record ingest result", "document_id", doc.ID, "error", err)
	}

	fresh, err := h.svc.GetByID(ctx, doc.ID)
	if err != nil {
		fresh = doc
	}
	writeJSON(w, http.StatusCreated, fresh)
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 20
	}

	docs, err := h.svc.List(r.Context(), limit, offset)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": docs, "count": len(docs)})
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid document ID")
		return
	}

	doc, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		writeErr(w, http.StatusNotFound, "document not found")
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid document ID")
		return
	}

	doc, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		writeErr(w, http.StatusNotFound, "document not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":            doc.ID.String(),
		"status":        doc.Status,
		"segment_count": doc.SegmentCount,
		"last_error":    doc.LastError,
	})
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid document ID")
		return
	}

	// Vectors go first: if the index delete fails the registry row survives
	// and the delete can be retried, never the other way around.
	if err := h.pipeline.DeleteDocument(r.Context(), id); err != nil {
		writeErr(w, http.StatusInternalServerError, "delete document segments: "+err.Error())
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		if err == document.ErrNotFound {
			writeErr(w, http.StatusNotFound, "document not found")
			return
		}
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
