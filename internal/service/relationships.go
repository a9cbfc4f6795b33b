package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/doxalabs/doxa/internal/domain"
)

// RelationshipService maintains the typed, temporally-qualified belief
// graph: CRUD on edges, deprecation chains, and the graph algorithms over
// them. The graph is a view computed from the belief and relationship sets,
// never a separate source of truth.
type RelationshipService struct {
	graph    domain.GraphStore
	beliefs  domain.BeliefStore
	cfg      domain.EngineConfig
	counters *Counters
	logger   *zap.Logger
}

func NewRelationshipService(gs domain.GraphStore, bs domain.BeliefStore, cfg domain.EngineConfig, counters *Counters, logger *zap.Logger) *RelationshipService {
	return &RelationshipService{
		graph:    gs,
		beliefs:  bs,
		cfg:      cfg,
		counters: counters,
		logger:   logger,
	}
}

// CreateRelationshipInput carries the caller-settable fields of a new edge.
type CreateRelationshipInput struct {
	SourceBeliefID string              `json:"source_belief_id"`
	TargetBeliefID string              `json:"target_belief_id"`
	Type           domain.RelationType `json:"type"`
	Strength       float64             `json:"strength"`
	AgentID        string              `json:"agent_id"`
	Metadata       map[string]any      `json:"metadata,omitempty"`
	EffectiveFrom  *time.Time          `json:"effective_from,omitempty"`
	EffectiveUntil *time.Time          `json:"effective_until,omitempty"`
}

// CreateRelationship adds a typed edge between two beliefs of one agent.
// Self-loops are rejected, as is a second active deprecating edge for the
// same ordered pair.
func (s *RelationshipService) CreateRelationship(ctx context.Context, in CreateRelationshipInput) (*domain.BeliefRelationship, error) {
	if err := s.validateInput(ctx, in); err != nil {
		return nil, err
	}

	now := time.Now()
	from := now
	if in.EffectiveFrom != nil {
		from = *in.EffectiveFrom
	}

	if domain.DeprecatingRelations[in.Type] {
		if existing, err := s.graph.ActiveDeprecatingEdge(ctx, in.SourceBeliefID, in.TargetBeliefID); err == nil {
			return nil, domain.NewError(domain.KindInvalidInput,
				"an active deprecating edge already exists for this pair").
				WithDetail("field", "type").
				WithDetail("existing_relationship_id", existing.ID)
		} else if !domain.IsKind(err, domain.KindNotFound) {
			return nil, domain.StorageError("graph.active_deprecating_edge", err)
		}
	}

	rel := &domain.BeliefRelationship{
		ID:             domain.NewRelationshipID(),
		AgentID:        in.AgentID,
		SourceBeliefID: in.SourceBeliefID,
		TargetBeliefID: in.TargetBeliefID,
		Type:           in.Type,
		Strength:       in.Strength,
		Metadata:       in.Metadata,
		EffectiveFrom:  from,
		EffectiveUntil: in.EffectiveUntil,
		Active:         true,
		CreatedAt:      now,
	}
	if err := s.graph.PutRelationship(ctx, rel); err != nil {
		return nil, domain.StorageError("graph.put", err)
	}
	return rel, nil
}

// CreateTemporalRelationship creates an edge with an explicit effectiveness
// window.
func (s *RelationshipService) CreateTemporalRelationship(ctx context.Context, in CreateRelationshipInput, from time.Time, until *time.Time) (*domain.BeliefRelationship, error) {
	in.EffectiveFrom = &from
	in.EffectiveUntil = until
	return s.CreateRelationship(ctx, in)
}

// DeprecateBeliefWith marks oldID as superseded by newID: it creates a
// Supersedes edge new -> old, deactivates the old belief, and rejects any
// call that would introduce a cycle in the deprecation chain.
func (s *RelationshipService) DeprecateBeliefWith(ctx context.Context, oldID, newID, reason, agentID string) (*domain.BeliefRelationship, error) {
	if oldID == newID {
		return nil, domain.InvalidField("newBeliefId", "cannot deprecate a belief with itself", newID)
	}

	cyclic, err := s.wouldCycle(ctx, oldID, newID)
	if err != nil {
		return nil, err
	}
	if cyclic {
		return nil, domain.NewError(domain.KindInvalidInput,
			"deprecation would introduce a cycle in the chain").
			WithDetail("field", "newBeliefId").
			WithDetail("value", newID)
	}

	rel, err := s.CreateRelationship(ctx, CreateRelationshipInput{
		SourceBeliefID: newID,
		TargetBeliefID: oldID,
		Type:           domain.RelationSupersedes,
		Strength:       1.0,
		AgentID:        agentID,
	})
	if err != nil {
		return nil, err
	}

	rel.DeprecationReason = reason
	if err := s.graph.PutRelationship(ctx, rel); err != nil {
		return nil, domain.StorageError("graph.put", err)
	}

	old, err := s.beliefs.Get(ctx, oldID)
	if err != nil {
		return nil, domain.StorageError("belief.get", err)
	}
	if old.Active {
		old.Active = false
		old.LastUpdated = time.Now()
		if err := s.beliefs.Put(ctx, old); err != nil {
			return nil, domain.StorageError("belief.put", err)
		}
	}

	s.counters.deprecations.Add(1)
	s.logger.Info("belief deprecated",
		zap.String("old_belief_id", oldID),
		zap.String("new_belief_id", newID),
		zap.String("reason", reason))
	return rel, nil
}

// RelationshipUpdate is a partial edge update; nil fields are untouched.
type RelationshipUpdate struct {
	Strength          *float64       `json:"strength,omitempty"`
	Active            *bool          `json:"active,omitempty"`
	EffectiveUntil    *time.Time     `json:"effective_until,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	DeprecationReason *string        `json:"deprecation_reason,omitempty"`
}

func (s *RelationshipService) UpdateRelationship(ctx context.Context, id string, patch RelationshipUpdate) (*domain.BeliefRelationship, error) {
	rel, err := s.GetRelationship(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Strength != nil {
		if *patch.Strength < 0 || *patch.Strength > 1 {
			return nil, domain.InvalidField("strength", "must be in [0,1]", *patch.Strength)
		}
		rel.Strength = *patch.Strength
	}
	if patch.EffectiveUntil != nil {
		if !patch.EffectiveUntil.After(rel.EffectiveFrom) {
			return nil, domain.InvalidField("effectiveUntil", "must be after effectiveFrom", patch.EffectiveUntil)
		}
		rel.EffectiveUntil = patch.EffectiveUntil
	}
	if patch.Metadata != nil {
		rel.Metadata = patch.Metadata
	}
	if patch.DeprecationReason != nil {
		rel.DeprecationReason = *patch.DeprecationReason
	}
	if patch.Active != nil {
		if *patch.Active && !rel.Active && rel.IsDeprecating() {
			// Reactivation must not break deprecating-edge uniqueness.
			if existing, err := s.graph.ActiveDeprecatingEdge(ctx, rel.SourceBeliefID, rel.TargetBeliefID); err == nil && existing.ID != rel.ID {
				return nil, domain.NewError(domain.KindInvalidInput,
					"an active deprecating edge already exists for this pair").
					WithDetail("existing_relationship_id", existing.ID)
			} else if err != nil && !domain.IsKind(err, domain.KindNotFound) {
				return nil, domain.StorageError("graph.active_deprecating_edge", err)
			}
		}
		rel.Active = *patch.Active
	}

	if err := s.graph.PutRelationship(ctx, rel); err != nil {
		return nil, domain.StorageError("graph.put", err)
	}
	return rel, nil
}

func (s *RelationshipService) DeleteRelationship(ctx context.Context, id string) error {
	if err := s.graph.DeleteRelationship(ctx, id); err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return domain.NewError(domain.KindNotFound, "relationship not found").
				WithDetail("relationshipId", id)
		}
		return domain.StorageError("graph.delete", err)
	}
	return nil
}

func (s *RelationshipService) GetRelationship(ctx context.Context, id string) (*domain.BeliefRelationship, error) {
	rel, err := s.graph.GetRelationship(ctx, id)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return nil, domain.NewError(domain.KindNotFound, "relationship not found").
				WithDetail("relationshipId", id)
		}
		return nil, domain.StorageError("graph.get", err)
	}
	return rel, nil
}

func (s *RelationshipService) ListForBelief(ctx context.Context, beliefID string, dir domain.Direction, includeInactive bool) ([]*domain.BeliefRelationship, error) {
	out, err := s.graph.ListByBelief(ctx, beliefID, dir, includeInactive)
	if err != nil {
		return nil, domain.StorageError("graph.list", err)
	}
	return out, nil
}

func (s *RelationshipService) ListByAgent(ctx context.Context, agentID string, includeInactive bool) ([]*domain.BeliefRelationship, error) {
	out, err := s.graph.ListByAgent(ctx, agentID, includeInactive)
	if err != nil {
		return nil, domain.StorageError("graph.list", err)
	}
	return out, nil
}

func (s *RelationshipService) ListByType(ctx context.Context, agentID string, t domain.RelationType, includeInactive bool) ([]*domain.BeliefRelationship, error) {
	if !domain.ValidRelationType(string(t)) {
		return nil, domain.InvalidField("type", "unknown relation type", string(t))
	}
	out, err := s.graph.ListByType(ctx, agentID, t, includeInactive)
	if err != nil {
		return nil, domain.StorageError("graph.list", err)
	}
	return out, nil
}

// EffectiveAt lists the agent's edges in force at t.
func (s *RelationshipService) EffectiveAt(ctx context.Context, agentID string, t time.Time) ([]*domain.BeliefRelationship, error) {
	all, err := s.graph.ListByAgent(ctx, agentID, false)
	if err != nil {
		return nil, domain.StorageError("graph.list", err)
	}
	out := make([]*domain.BeliefRelationship, 0, len(all))
	for _, rel := range all {
		if rel.EffectiveAt(t) {
			out = append(out, rel)
		}
	}
	return out, nil
}

// DeprecatedBeliefs returns the beliefs that sit on the target end of an
// active deprecating edge, newest deprecation first.
func (s *RelationshipService) DeprecatedBeliefs(ctx context.Context, agentID string) ([]*domain.Belief, error) {
	edges, err := s.graph.ListByAgent(ctx, agentID, false)
	if err != nil {
		return nil, domain.StorageError("graph.list", err)
	}

	var ids []string
	seen := make(map[string]bool)
	for _, rel := range edges {
		if rel.IsDeprecating() && !seen[rel.TargetBeliefID] {
			seen[rel.TargetBeliefID] = true
			ids = append(ids, rel.TargetBeliefID)
		}
	}

	found, err := s.beliefs.GetMany(ctx, ids)
	if err != nil {
		return nil, domain.StorageError("belief.get_many", err)
	}
	out := make([]*domain.Belief, 0, len(ids))
	for _, id := range ids {
		if b, ok := found[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

// RelatedBeliefs walks the graph outward from a belief via BFS over
// currently-effective edges in both directions, bounded by depth and the
// configured traversal ceiling. Returns the visited beliefs and the edges
// that connect them.
func (s *RelationshipService) RelatedBeliefs(ctx context.Context, beliefID string, depth int, includeInactive bool) (*domain.GraphView, error) {
	root, err := s.beliefs.Get(ctx, beliefID)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return nil, domain.NewError(domain.KindNotFound, "belief not found").
				WithDetail("beliefId", beliefID)
		}
		return nil, domain.StorageError("belief.get", err)
	}
	if depth <= 0 || depth > s.cfg.MaxGraphTraversalDepth {
		depth = s.cfg.MaxGraphTraversalDepth
	}

	adj, edges, err := s.adjacency(ctx, root.AgentID, includeInactive)
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{beliefID: true}
	usedEdges := make(map[string]*domain.BeliefRelationship)
	frontier := []string{beliefID}

	for level := 0; level < depth && len(frontier) > 0; level++ {
		var next []string
		for _, id := range frontier {
			for _, rel := range adj[id] {
				usedEdges[rel.ID] = rel
				other := rel.TargetBeliefID
				if other == id {
					other = rel.SourceBeliefID
				}
				if !visited[other] {
					visited[other] = true
					next = append(next, other)
				}
			}
		}
		frontier = next
	}

	return s.assembleView(ctx, visited, usedEdges, edges)
}

// ShortestPath finds the minimum-hop path between two beliefs over
// currently-effective edges, traversed in both directions. Among equal-hop
// paths the one with the higher average strength wins.
func (s *RelationshipService) ShortestPath(ctx context.Context, sourceID, targetID string) (*domain.GraphPath, error) {
	src, err := s.beliefs.Get(ctx, sourceID)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return nil, domain.NewError(domain.KindNotFound, "belief not found").
				WithDetail("beliefId", sourceID)
		}
		return nil, domain.StorageError("belief.get", err)
	}

	adj, _, err := s.adjacency(ctx, src.AgentID, false)
	if err != nil {
		return nil, err
	}

	type pathState struct {
		strength float64
		prevNode string
		prevEdge *domain.BeliefRelationship
	}
	best := map[string]pathState{sourceID: {}}
	frontier := []string{sourceID}
	settled := map[string]bool{sourceID: true}

	found := sourceID == targetID
	for len(frontier) > 0 && !found {
		// Level-synchronous BFS: all same-hop paths to a node are compared
		// before the node is expanded, so the strength tie-break is exact.
		levelBest := make(map[string]pathState)
		for _, id := range frontier {
			for _, rel := range adj[id] {
				other := rel.TargetBeliefID
				if other == id {
					other = rel.SourceBeliefID
				}
				if settled[other] {
					continue
				}
				cand := pathState{
					strength: best[id].strength + rel.Strength,
					prevNode: id,
					prevEdge: rel,
				}
				if cur, ok := levelBest[other]; !ok || cand.strength > cur.strength {
					levelBest[other] = cand
				}
			}
		}

		frontier = frontier[:0]
		for id, st := range levelBest {
			best[id] = st
			settled[id] = true
			frontier = append(frontier, id)
			if id == targetID {
				found = true
			}
		}
		sort.Strings(frontier)
	}

	if !found {
		return nil, domain.NewError(domain.KindNotFound, "no path between beliefs").
			WithDetail("sourceBeliefId", sourceID).
			WithDetail("targetBeliefId", targetID)
	}

	// Walk predecessors back to the source.
	var ids []string
	var edges []*domain.BeliefRelationship
	for id := targetID; ; {
		ids = append([]string{id}, ids...)
		st := best[id]
		if st.prevEdge == nil {
			break
		}
		edges = append([]*domain.BeliefRelationship{st.prevEdge}, edges...)
		id = st.prevNode
	}

	avg := 0.0
	if len(edges) > 0 {
		avg = best[targetID].strength / float64(len(edges))
	}
	return &domain.GraphPath{BeliefIDs: ids, Edges: edges, AvgStrength: avg}, nil
}

// Clusters returns the connected components of the subgraph whose
// currently-effective edges have strength at or above the threshold,
// largest component first.
func (s *RelationshipService) Clusters(ctx context.Context, agentID string, strengthThreshold float64) ([]domain.GraphCluster, error) {
	edges, err := s.EffectiveAt(ctx, agentID, time.Now())
	if err != nil {
		return nil, err
	}

	adj := make(map[string][]string)
	for _, rel := range edges {
		if rel.Strength < strengthThreshold {
			continue
		}
		adj[rel.SourceBeliefID] = append(adj[rel.SourceBeliefID], rel.TargetBeliefID)
		adj[rel.TargetBeliefID] = append(adj[rel.TargetBeliefID], rel.SourceBeliefID)
	}

	nodes := make([]string, 0, len(adj))
	for id := range adj {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)

	visited := make(map[string]bool)
	var clusters []domain.GraphCluster
	for _, start := range nodes {
		if visited[start] {
			continue
		}
		var members []string
		queue := []string{start}
		visited[start] = true
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			members = append(members, id)
			for _, other := range adj[id] {
				if !visited[other] {
					visited[other] = true
					queue = append(queue, other)
				}
			}
		}
		sort.Strings(members)
		clusters = append(clusters, domain.GraphCluster{BeliefIDs: members})
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return len(clusters[i].BeliefIDs) > len(clusters[j].BeliefIDs)
	})
	return clusters, nil
}

// ConflictPairs lists belief pairs connected by a conflict relation.
func (s *RelationshipService) ConflictPairs(ctx context.Context, agentID string) ([]domain.ConflictPair, error) {
	edges, err := s.EffectiveAt(ctx, agentID, time.Now())
	if err != nil {
		return nil, err
	}
	out := make([]domain.ConflictPair, 0)
	for _, rel := range edges {
		if domain.ConflictRelations[rel.Type] {
			out = append(out, domain.ConflictPair{
				SourceBeliefID: rel.SourceBeliefID,
				TargetBeliefID: rel.TargetBeliefID,
				Type:           rel.Type,
				RelationshipID: rel.ID,
			})
		}
	}
	return out, nil
}

// ValidateGraph reports structural issues in the agent's graph: dangling
// endpoints, self-loops, cycles in deprecation chains, and temporal
// inversions. Issues are descriptions, not errors; the graph stays usable.
func (s *RelationshipService) ValidateGraph(ctx context.Context, agentID string) ([]string, error) {
	edges, err := s.graph.ListByAgent(ctx, agentID, true)
	if err != nil {
		return nil, domain.StorageError("graph.list", err)
	}

	idSet := make(map[string]bool)
	for _, rel := range edges {
		idSet[rel.SourceBeliefID] = true
		idSet[rel.TargetBeliefID] = true
	}
	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	found, err := s.beliefs.GetMany(ctx, ids)
	if err != nil {
		return nil, domain.StorageError("belief.get_many", err)
	}

	var issues []string
	deprecatingAdj := make(map[string][]string)
	for _, rel := range edges {
		if rel.SourceBeliefID == rel.TargetBeliefID {
			issues = append(issues, fmt.Sprintf("relationship %s is a self-loop on belief %s", rel.ID, rel.SourceBeliefID))
		}
		if found[rel.SourceBeliefID] == nil {
			issues = append(issues, fmt.Sprintf("relationship %s has dangling source belief %s", rel.ID, rel.SourceBeliefID))
		}
		if found[rel.TargetBeliefID] == nil {
			issues = append(issues, fmt.Sprintf("relationship %s has dangling target belief %s", rel.ID, rel.TargetBeliefID))
		}
		if rel.EffectiveUntil != nil && !rel.EffectiveUntil.After(rel.EffectiveFrom) {
			issues = append(issues, fmt.Sprintf("relationship %s has effectiveUntil at or before effectiveFrom", rel.ID))
		}
		if rel.Active && rel.IsDeprecating() {
			deprecatingAdj[rel.SourceBeliefID] = append(deprecatingAdj[rel.SourceBeliefID], rel.TargetBeliefID)
		}
	}

	for _, cycle := range findCycles(deprecatingAdj) {
		issues = append(issues, fmt.Sprintf("deprecation chain contains a cycle through belief %s", cycle))
	}
	return issues, nil
}

// Cleanup removes inactive relationships created more than olderThanDays
// days ago and reports how many were removed.
func (s *RelationshipService) Cleanup(ctx context.Context, agentID string, olderThanDays int) (int, error) {
	if olderThanDays <= 0 {
		return 0, domain.InvalidField("olderThanDays", "must be positive", olderThanDays)
	}
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	removed, err := s.graph.RemoveInactiveOlderThan(ctx, agentID, cutoff)
	if err != nil {
		return 0, domain.StorageError("graph.cleanup", err)
	}
	if removed > 0 {
		s.logger.Info("removed inactive relationships",
			zap.String("agent_id", agentID),
			zap.Int("count", removed))
	}
	return removed, nil
}

func (s *RelationshipService) validateInput(ctx context.Context, in CreateRelationshipInput) error {
	if in.AgentID == "" {
		return domain.InvalidField("agentId", "must not be empty", in.AgentID)
	}
	if in.SourceBeliefID == "" || in.TargetBeliefID == "" {
		return domain.InvalidField("sourceBeliefId", "both endpoint ids are required", "")
	}
	if in.SourceBeliefID == in.TargetBeliefID {
		return domain.InvalidField("targetBeliefId", "self-loops are not allowed", in.TargetBeliefID)
	}
	if !domain.ValidRelationType(string(in.Type)) {
		return domain.InvalidField("type", "unknown relation type", string(in.Type))
	}
	if in.Strength < 0 || in.Strength > 1 {
		return domain.InvalidField("strength", "must be in [0,1]", in.Strength)
	}
	if in.EffectiveFrom != nil && in.EffectiveUntil != nil && !in.EffectiveUntil.After(*in.EffectiveFrom) {
		return domain.InvalidField("effectiveUntil", "must be after effectiveFrom", in.EffectiveUntil)
	}

	endpoints, err := s.beliefs.GetMany(ctx, []string{in.SourceBeliefID, in.TargetBeliefID})
	if err != nil {
		return domain.StorageError("belief.get_many", err)
	}
	for _, id := range []string{in.SourceBeliefID, in.TargetBeliefID} {
		b, ok := endpoints[id]
		if !ok {
			return domain.NewError(domain.KindNotFound, "belief not found").
				WithDetail("beliefId", id)
		}
		if b.AgentID != in.AgentID {
			return domain.InvalidField("agentId", "belief belongs to a different agent", id)
		}
	}
	return nil
}

// wouldCycle reports whether adding the deprecating edge newID -> oldID
// would close a loop. Deprecating edges point successor -> predecessor, so a
// cycle appears exactly when newID is already reachable from oldID along
// active deprecating edges.
func (s *RelationshipService) wouldCycle(ctx context.Context, oldID, newID string) (bool, error) {
	visited := map[string]bool{oldID: true}
	queue := []string{oldID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		edges, err := s.graph.ListByBelief(ctx, id, domain.DirectionOut, false)
		if err != nil {
			return false, domain.StorageError("graph.list", err)
		}
		for _, rel := range edges {
			if !rel.IsDeprecating() {
				continue
			}
			pred := rel.TargetBeliefID
			if pred == newID {
				return true, nil
			}
			if !visited[pred] {
				visited[pred] = true
				queue = append(queue, pred)
			}
		}
	}
	return false, nil
}

// adjacency loads the agent's edges once and indexes them by endpoint.
// Only currently-effective edges participate unless includeInactive is set.
func (s *RelationshipService) adjacency(ctx context.Context, agentID string, includeInactive bool) (map[string][]*domain.BeliefRelationship, []*domain.BeliefRelationship, error) {
	all, err := s.graph.ListByAgent(ctx, agentID, includeInactive)
	if err != nil {
		return nil, nil, domain.StorageError("graph.list", err)
	}

	now := time.Now()
	adj := make(map[string][]*domain.BeliefRelationship)
	edges := make([]*domain.BeliefRelationship, 0, len(all))
	for _, rel := range all {
		if !includeInactive && !rel.EffectiveAt(now) {
			continue
		}
		adj[rel.SourceBeliefID] = append(adj[rel.SourceBeliefID], rel)
		adj[rel.TargetBeliefID] = append(adj[rel.TargetBeliefID], rel)
		edges = append(edges, rel)
	}
	return adj, edges, nil
}

func (s *RelationshipService) assembleView(ctx context.Context, visited map[string]bool, usedEdges map[string]*domain.BeliefRelationship, _ []*domain.BeliefRelationship) (*domain.GraphView, error) {
	ids := make([]string, 0, len(visited))
	for id := range visited {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	found, err := s.beliefs.GetMany(ctx, ids)
	if err != nil {
		return nil, domain.StorageError("belief.get_many", err)
	}
	beliefs := make([]*domain.Belief, 0, len(ids))
	for _, id := range ids {
		if b, ok := found[id]; ok {
			beliefs = append(beliefs, b)
		}
	}

	// Keep only edges with both endpoints in the visited set.
	edges := make([]*domain.BeliefRelationship, 0, len(usedEdges))
	for _, rel := range usedEdges {
		if visited[rel.SourceBeliefID] && visited[rel.TargetBeliefID] {
			edges = append(edges, rel)
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })

	return &domain.GraphView{Beliefs: beliefs, Edges: edges}, nil
}

// findCycles runs a three-color DFS over the deprecation adjacency and
// returns one representative node per cycle found.
func findCycles(adj map[string][]string) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	var cycles []string

	nodes := make([]string, 0, len(adj))
	for id := range adj {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, next := range adj[id] {
			switch color[next] {
			case gray:
				cycles = append(cycles, next)
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	for _, id := range nodes {
		if color[id] == white {
			visit(id)
		}
	}
	return cycles
}
