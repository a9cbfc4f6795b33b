package inmem

import (
	"context"
	"sort"
	"time"

	"github.com/doxalabs/doxa/internal/domain"
)

type GraphStore struct {
	db *DB
}

func NewGraphStore(db *DB) *GraphStore {
	return &GraphStore{db: db}
}

func (s *GraphStore) PutRelationship(ctx context.Context, r *domain.BeliefRelationship) error {
	if r.ID == "" {
		return domain.NewError(domain.KindInvalidInput, "relationship id not assigned").
			WithDetail("field", "id")
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if old, ok := s.db.edges[r.ID]; ok {
		// Replacement may rewire endpoints; drop the old adjacency entries.
		s.db.outEdges[old.SourceBeliefID] = removeID(s.db.outEdges[old.SourceBeliefID], r.ID)
		s.db.inEdges[old.TargetBeliefID] = removeID(s.db.inEdges[old.TargetBeliefID], r.ID)
	}
	s.db.edges[r.ID] = r.Clone()
	s.db.outEdges[r.SourceBeliefID] = append(s.db.outEdges[r.SourceBeliefID], r.ID)
	s.db.inEdges[r.TargetBeliefID] = append(s.db.inEdges[r.TargetBeliefID], r.ID)
	return nil
}

func (s *GraphStore) GetRelationship(ctx context.Context, id string) (*domain.BeliefRelationship, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	r, ok := s.db.edges[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (s *GraphStore) DeleteRelationship(ctx context.Context, id string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	r, ok := s.db.edges[id]
	if !ok {
		return ErrNotFound
	}
	s.db.outEdges[r.SourceBeliefID] = removeID(s.db.outEdges[r.SourceBeliefID], id)
	s.db.inEdges[r.TargetBeliefID] = removeID(s.db.inEdges[r.TargetBeliefID], id)
	delete(s.db.edges, id)
	return nil
}

func (s *GraphStore) ListByBelief(ctx context.Context, beliefID string, dir domain.Direction, includeInactive bool) ([]*domain.BeliefRelationship, error) {
	s.db.mu.RLock()
	ids := make([]string, 0)
	switch dir {
	case domain.DirectionOut:
		ids = append(ids, s.db.outEdges[beliefID]...)
	case domain.DirectionIn:
		ids = append(ids, s.db.inEdges[beliefID]...)
	default:
		ids = append(ids, s.db.outEdges[beliefID]...)
		ids = append(ids, s.db.inEdges[beliefID]...)
	}

	out := make([]*domain.BeliefRelationship, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		r := s.db.edges[id]
		if r == nil {
			continue
		}
		if !includeInactive && !r.Active {
			continue
		}
		out = append(out, r.Clone())
	}
	s.db.mu.RUnlock()

	sortEdges(out)
	return out, nil
}

func (s *GraphStore) ListByAgent(ctx context.Context, agentID string, includeInactive bool) ([]*domain.BeliefRelationship, error) {
	return s.list(func(r *domain.BeliefRelationship) bool {
		if r.AgentID != agentID {
			return false
		}
		return includeInactive || r.Active
	}), nil
}

func (s *GraphStore) ListByType(ctx context.Context, agentID string, t domain.RelationType, includeInactive bool) ([]*domain.BeliefRelationship, error) {
	return s.list(func(r *domain.BeliefRelationship) bool {
		if agentID != "" && r.AgentID != agentID {
			return false
		}
		if r.Type != t {
			return false
		}
		return includeInactive || r.Active
	}), nil
}

func (s *GraphStore) ActiveDeprecatingEdge(ctx context.Context, sourceID, targetID string) (*domain.BeliefRelationship, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	for _, id := range s.db.outEdges[sourceID] {
		r := s.db.edges[id]
		if r == nil || !r.Active {
			continue
		}
		if r.TargetBeliefID == targetID && r.IsDeprecating() {
			return r.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *GraphStore) RemoveInactiveOlderThan(ctx context.Context, agentID string, cutoff time.Time) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	removed := 0
	for id, r := range s.db.edges {
		if r.Active || !r.CreatedAt.Before(cutoff) {
			continue
		}
		if agentID != "" && r.AgentID != agentID {
			continue
		}
		s.db.outEdges[r.SourceBeliefID] = removeID(s.db.outEdges[r.SourceBeliefID], id)
		s.db.inEdges[r.TargetBeliefID] = removeID(s.db.inEdges[r.TargetBeliefID], id)
		delete(s.db.edges, id)
		removed++
	}
	return removed, nil
}

func (s *GraphStore) Count(ctx context.Context) (int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return len(s.db.edges), nil
}

func (s *GraphStore) list(match func(*domain.BeliefRelationship) bool) []*domain.BeliefRelationship {
	s.db.mu.RLock()
	out := make([]*domain.BeliefRelationship, 0)
	for _, r := range s.db.edges {
		if match(r) {
			out = append(out, r.Clone())
		}
	}
	s.db.mu.RUnlock()

	sortEdges(out)
	return out
}

func sortEdges(edges []*domain.BeliefRelationship) {
	sort.Slice(edges, func(i, j int) bool {
		if !edges[i].CreatedAt.Equal(edges[j].CreatedAt) {
			return edges[i].CreatedAt.After(edges[j].CreatedAt)
		}
		return edges[i].ID < edges[j].ID
	})
}
