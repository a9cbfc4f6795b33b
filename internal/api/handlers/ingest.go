package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/doxalabs/doxa/internal/domain"
	"github.com/doxalabs/doxa/internal/service"
)

type IngestHandler struct {
	svc *service.IngestionService
}

func NewIngestHandler(svc *service.IngestionService) *IngestHandler {
	return &IngestHandler{svc: svc}
}

// Ingest runs the full pipeline. A failed belief-analysis phase still stores
// the memory, so the partial result goes back with 200 and
// belief_analysis:"failed"; the caller retries via reanalyze.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var in domain.IngestionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.svc.Ingest(r.Context(), in)
	if err != nil {
		if domain.IsKind(err, domain.KindBeliefAnalysisIncomplete) && res != nil {
			writeJSON(w, http.StatusOK, res)
			return
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

type validateResponse struct {
	Valid      bool                `json:"valid"`
	Violations []domain.FieldError `json:"violations"`
}

func (h *IngestHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var in domain.IngestionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	violations := h.svc.ValidateInput(in)
	if violations == nil {
		violations = []domain.FieldError{}
	}

	writeJSON(w, http.StatusOK, validateResponse{
		Valid:      len(violations) == 0,
		Violations: violations,
	})
}

// Reanalyze reruns belief analysis for an already-stored memory.
func (h *IngestHandler) Reanalyze(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	res, err := h.svc.Reanalyze(r.Context(), id)
	if err != nil {
		if domain.IsKind(err, domain.KindBeliefAnalysisIncomplete) && res != nil {
			writeJSON(w, http.StatusOK, res)
			return
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}
