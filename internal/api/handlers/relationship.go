package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/doxalabs/doxa/internal/domain"
	"github.com/doxalabs/doxa/internal/service"
)

type RelationshipHandler struct {
	svc *service.RelationshipService
}

func NewRelationshipHandler(svc *service.RelationshipService) *RelationshipHandler {
	return &RelationshipHandler{svc: svc}
}

func (h *RelationshipHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateRelationshipInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rel, err := h.svc.CreateRelationship(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rel)
}

func (h *RelationshipHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch service.RelationshipUpdate
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rel, err := h.svc.UpdateRelationship(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rel)
}

func (h *RelationshipHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteRelationship(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type listRelationshipsResponse struct {
	Relationships []*domain.BeliefRelationship `json:"relationships"`
	Count         int                          `json:"count"`
}

// List returns the agent's edges; optional filters narrow by type or by the
// instant the edge must be effective at (RFC3339 `effective_at`).
func (h *RelationshipHandler) List(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id parameter is required")
		return
	}

	var rels []*domain.BeliefRelationship
	var err error
	switch {
	case r.URL.Query().Get("type") != "":
		rels, err = h.svc.ListByType(r.Context(), agentID, domain.RelationType(r.URL.Query().Get("type")), boolParam(r, "include_inactive"))
	case r.URL.Query().Get("effective_at") != "":
		var at time.Time
		at, err = time.Parse(time.RFC3339, r.URL.Query().Get("effective_at"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "effective_at must be RFC3339")
			return
		}
		rels, err = h.svc.EffectiveAt(r.Context(), agentID, at)
	default:
		rels, err = h.svc.ListByAgent(r.Context(), agentID, boolParam(r, "include_inactive"))
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listRelationshipsResponse{Relationships: rels, Count: len(rels)})
}

func (h *RelationshipHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	rel, err := h.svc.GetRelationship(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

func (h *RelationshipHandler) ForBelief(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("direction")
	if dir == "" {
		dir = string(domain.DirectionBoth)
	}
	if !domain.ValidDirection(dir) {
		writeError(w, http.StatusBadRequest, "direction must be in, out, or both")
		return
	}

	rels, err := h.svc.ListForBelief(r.Context(), chi.URLParam(r, "id"), domain.Direction(dir), boolParam(r, "include_inactive"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listRelationshipsResponse{Relationships: rels, Count: len(rels)})
}

func (h *RelationshipHandler) Related(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.RelatedBeliefs(r.Context(), chi.URLParam(r, "id"), intParam(r, "depth", 0), boolParam(r, "include_inactive"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *RelationshipHandler) Path(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to parameters are required")
		return
	}

	path, err := h.svc.ShortestPath(r.Context(), from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, path)
}

type clustersResponse struct {
	Clusters []domain.GraphCluster `json:"clusters"`
	Count    int                   `json:"count"`
}

func (h *RelationshipHandler) Clusters(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id parameter is required")
		return
	}

	clusters, err := h.svc.Clusters(r.Context(), agentID, floatParam(r, "threshold", 0))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, clustersResponse{Clusters: clusters, Count: len(clusters)})
}

type conflictPairsResponse struct {
	Pairs []domain.ConflictPair `json:"pairs"`
	Count int                   `json:"count"`
}

func (h *RelationshipHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id parameter is required")
		return
	}

	pairs, err := h.svc.ConflictPairs(r.Context(), agentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conflictPairsResponse{Pairs: pairs, Count: len(pairs)})
}

type validateGraphResponse struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
}

func (h *RelationshipHandler) Validate(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id parameter is required")
		return
	}

	issues, err := h.svc.ValidateGraph(r.Context(), agentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if issues == nil {
		issues = []string{}
	}

	writeJSON(w, http.StatusOK, validateGraphResponse{Valid: len(issues) == 0, Issues: issues})
}

type cleanupRequest struct {
	AgentID       string `json:"agent_id"`
	OlderThanDays int    `json:"older_than_days"`
}

type cleanupResponse struct {
	Removed int `json:"removed"`
}

func (h *RelationshipHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	removed, err := h.svc.Cleanup(r.Context(), req.AgentID, req.OlderThanDays)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, cleanupResponse{Removed: removed})
}
