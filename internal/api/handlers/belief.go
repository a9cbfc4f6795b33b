package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/doxalabs/doxa/internal/domain"
	"github.com/doxalabs/doxa/internal/service"
)

type BeliefHandler struct {
	analyzer      *service.AnalyzerService
	relationships *service.RelationshipService
}

func NewBeliefHandler(analyzer *service.AnalyzerService, relationships *service.RelationshipService) *BeliefHandler {
	return &BeliefHandler{analyzer: analyzer, relationships: relationships}
}

type listBeliefsResponse struct {
	Beliefs []*domain.Belief `json:"beliefs"`
	Count   int              `json:"count"`
}

func (h *BeliefHandler) List(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id parameter is required")
		return
	}

	var beliefs []*domain.Belief
	var err error
	if category := r.URL.Query().Get("category"); category != "" {
		beliefs, err = h.analyzer.BeliefsInCategory(r.Context(), category, agentID)
	} else {
		beliefs, err = h.analyzer.BeliefsForAgent(r.Context(), agentID, boolParam(r, "include_inactive"))
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listBeliefsResponse{Beliefs: beliefs, Count: len(beliefs)})
}

func (h *BeliefHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	b, err := h.analyzer.GetBelief(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type relatedBeliefsResponse struct {
	Query   string                `json:"query"`
	Beliefs []domain.ScoredBelief `json:"beliefs"`
	Count   int                   `json:"count"`
}

func (h *BeliefHandler) Related(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	agentID := r.URL.Query().Get("agent_id")
	if query == "" || agentID == "" {
		writeError(w, http.StatusBadRequest, "query and agent_id parameters are required")
		return
	}

	results, err := h.analyzer.FindRelatedBeliefs(r.Context(), query, agentID, intParam(r, "limit", 10))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, relatedBeliefsResponse{Query: query, Beliefs: results, Count: len(results)})
}

func (h *BeliefHandler) LowConfidence(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id parameter is required")
		return
	}

	beliefs, err := h.analyzer.LowConfidenceBeliefs(r.Context(), floatParam(r, "threshold", 0), agentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listBeliefsResponse{Beliefs: beliefs, Count: len(beliefs)})
}

func (h *BeliefHandler) Deprecated(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id parameter is required")
		return
	}

	beliefs, err := h.relationships.DeprecatedBeliefs(r.Context(), agentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listBeliefsResponse{Beliefs: beliefs, Count: len(beliefs)})
}

type updateConfidenceRequest struct {
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

func (h *BeliefHandler) UpdateConfidence(w http.ResponseWriter, r *http.Request) {
	var req updateConfidenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	b, err := h.analyzer.UpdateBeliefConfidence(r.Context(), chi.URLParam(r, "id"), req.Confidence, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, b)
}

type deactivateRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *BeliefHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	var req deactivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	b, err := h.analyzer.DeactivateBelief(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, b)
}

type deprecateRequest struct {
	SuccessorBeliefID string `json:"successor_belief_id"`
	Reason            string `json:"reason,omitempty"`
	AgentID           string `json:"agent_id"`
}

// Deprecate marks the path belief as superseded by the successor named in
// the body: a Supersedes edge successor→old, old deactivated.
func (h *BeliefHandler) Deprecate(w http.ResponseWriter, r *http.Request) {
	var req deprecateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rel, err := h.relationships.DeprecateBeliefWith(r.Context(), chi.URLParam(r, "id"), req.SuccessorBeliefID, req.Reason, req.AgentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rel)
}

type distributionResponse struct {
	Categories map[string]int `json:"categories"`
	Confidence map[string]int `json:"confidence"`
}

func (h *BeliefHandler) Distribution(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id parameter is required")
		return
	}

	categories, err := h.analyzer.CategoryDistribution(r.Context(), agentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	confidence, err := h.analyzer.ConfidenceDistribution(r.Context(), agentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, distributionResponse{Categories: categories, Confidence: confidence})
}
