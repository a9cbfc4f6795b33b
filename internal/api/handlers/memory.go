package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/doxalabs/doxa/internal/domain"
	"github.com/doxalabs/doxa/internal/service"
)

type MemoryHandler struct {
	svc *service.EncoderService
}

func NewMemoryHandler(svc *service.EncoderService) *MemoryHandler {
	return &MemoryHandler{svc: svc}
}

type searchMemoriesResponse struct {
	Query    string                `json:"query"`
	Memories []domain.ScoredMemory `json:"memories"`
	Count    int                   `json:"count"`
}

func (h *MemoryHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id parameter is required")
		return
	}

	limit := intParam(r, "limit", 10)

	results, err := h.svc.SearchSimilar(r.Context(), query, limit, agentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchMemoriesResponse{
		Query:    query,
		Memories: results,
		Count:    len(results),
	})
}

type listMemoriesResponse struct {
	Memories []*domain.MemoryRecord `json:"memories"`
	Count    int                    `json:"count"`
}

func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id parameter is required")
		return
	}

	limit := intParam(r, "limit", 0)

	var memories []*domain.MemoryRecord
	var err error
	if category := r.URL.Query().Get("category"); category != "" {
		memories, err = h.svc.ListByCategory(r.Context(), category, agentID, limit)
	} else {
		memories, err = h.svc.ListByAgent(r.Context(), agentID, limit)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listMemoriesResponse{Memories: memories, Count: len(memories)})
}

func (h *MemoryHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func intParam(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func floatParam(r *http.Request, key string, def float64) float64 {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

func boolParam(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}
