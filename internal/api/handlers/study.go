package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/studypartner/backend/internal/rag"
)

type StudyHandler struct {
	pipeline rag.Pipeline
}

func NewStudyHandler(p rag.Pipeline) *StudyHandler {
	return &StudyHandler{pipeline: p}
}

// Ask answers a study question grounded in the ingested material.
func (h *StudyHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req rag.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body")
		return
	}

	answer, err := h.pipeline.Ask(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, rag.ErrInvalidInput):
			writeErr(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, rag.ErrEmptyGeneration):
			// Material was found but no answer could be composed; return the
			// sources so the client can still show them.
			writeJSON(w, http.StatusBadGateway, map[string]interface{}{
				"error":   "no answer could be generated",
				"sources": answer.Sources,
			})
		default:
			writeErr(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

func (h *StudyHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.pipeline.ListCategories(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"categories": categories})
}
