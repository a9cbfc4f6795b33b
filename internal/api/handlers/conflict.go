package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/doxalabs/doxa/internal/domain"
	"github.com/doxalabs/doxa/internal/service"
)

type ConflictHandler struct {
	analyzer *service.AnalyzerService
}

func NewConflictHandler(analyzer *service.AnalyzerService) *ConflictHandler {
	return &ConflictHandler{analyzer: analyzer}
}

type listConflictsResponse struct {
	Conflicts []*domain.BeliefConflict `json:"conflicts"`
	Count     int                      `json:"count"`
}

func (h *ConflictHandler) List(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id parameter is required")
		return
	}

	conflicts, err := h.analyzer.ListConflicts(r.Context(), agentID, boolParam(r, "include_resolved"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listConflictsResponse{Conflicts: conflicts, Count: len(conflicts)})
}

type reviewRequest struct {
	AgentID string `json:"agent_id"`
}

// Review runs a pairwise sweep of the agent's active beliefs and records any
// contradictions found.
func (h *ConflictHandler) Review(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	conflicts, err := h.analyzer.ReviewBeliefsForAgent(r.Context(), req.AgentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listConflictsResponse{Conflicts: conflicts, Count: len(conflicts)})
}

func (h *ConflictHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	conflict, err := h.analyzer.GetConflict(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resolved, err := h.analyzer.ResolveConflict(r.Context(), conflict)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resolved)
}

type strategiesRequest map[string]domain.ResolutionStrategy

func (h *ConflictHandler) UpdateStrategies(w http.ResponseWriter, r *http.Request) {
	var req strategiesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.analyzer.ConfigureResolutionStrategies(req); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.analyzer.ResolutionStrategies())
}

func (h *ConflictHandler) GetStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.analyzer.ResolutionStrategies())
}
