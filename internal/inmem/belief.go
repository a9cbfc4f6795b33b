package inmem

import (
	"context"
	"sort"

	"github.com/doxalabs/doxa/internal/domain"
)

type BeliefStore struct {
	db *DB
}

func NewBeliefStore(db *DB) *BeliefStore {
	return &BeliefStore{db: db}
}

func (s *BeliefStore) Put(ctx context.Context, b *domain.Belief) error {
	if b.ID == "" {
		return domain.NewError(domain.KindInvalidInput, "belief id not assigned").
			WithDetail("field", "id")
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.beliefs[b.ID] = b.Clone()
	return nil
}

func (s *BeliefStore) Get(ctx context.Context, id string) (*domain.Belief, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	b, ok := s.db.beliefs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b.Clone(), nil
}

func (s *BeliefStore) GetMany(ctx context.Context, ids []string) (map[string]*domain.Belief, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	out := make(map[string]*domain.Belief, len(ids))
	for _, id := range ids {
		if b, ok := s.db.beliefs[id]; ok {
			out[id] = b.Clone()
		}
	}
	return out, nil
}

func (s *BeliefStore) Remove(ctx context.Context, id string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.beliefs[id]; !ok {
		return ErrNotFound
	}
	delete(s.db.beliefs, id)
	return nil
}

func (s *BeliefStore) ListByAgent(ctx context.Context, agentID string, includeInactive bool) ([]*domain.Belief, error) {
	return s.list(func(b *domain.Belief) bool {
		if b.AgentID != agentID {
			return false
		}
		return includeInactive || b.Active
	}), nil
}

func (s *BeliefStore) ListByCategory(ctx context.Context, category, agentID string) ([]*domain.Belief, error) {
	want := domain.NormalizeCategory(category)
	return s.list(func(b *domain.Belief) bool {
		if agentID != "" && b.AgentID != agentID {
			return false
		}
		return b.Active && domain.NormalizeCategory(b.Category) == want
	}), nil
}

// FindSimilar scores the agent's active beliefs with the caller's scorer.
// The snapshot is taken before scoring, so writes made while the scorer runs
// are not observed by this call.
func (s *BeliefStore) FindSimilar(ctx context.Context, statement, agentID string, floor float64, k int, scorer domain.StatementScorer) ([]domain.ScoredBelief, error) {
	candidates := s.list(func(b *domain.Belief) bool {
		return b.AgentID == agentID && b.Active
	})

	scored := make([]domain.ScoredBelief, 0, len(candidates))
	for _, b := range candidates {
		score, err := scorer(ctx, statement, b.Statement)
		if err != nil {
			return nil, err
		}
		if score < floor {
			continue
		}
		scored = append(scored, domain.ScoredBelief{Belief: b, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Belief.LastUpdated.After(scored[j].Belief.LastUpdated)
	})

	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func (s *BeliefStore) CategoryDistribution(ctx context.Context, agentID string) (map[string]int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	out := make(map[string]int)
	for _, b := range s.db.beliefs {
		if b.AgentID != agentID || !b.Active {
			continue
		}
		out[domain.NormalizeCategory(b.Category)]++
	}
	return out, nil
}

func (s *BeliefStore) ConfidenceDistribution(ctx context.Context, agentID string, high, medium float64) (map[string]int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	out := map[string]int{"high": 0, "medium": 0, "low": 0}
	for _, b := range s.db.beliefs {
		if b.AgentID != agentID || !b.Active {
			continue
		}
		switch {
		case b.Confidence >= high:
			out["high"]++
		case b.Confidence >= medium:
			out["medium"]++
		default:
			out["low"]++
		}
	}
	return out, nil
}

func (s *BeliefStore) Count(ctx context.Context) (int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return len(s.db.beliefs), nil
}

// list returns matches newest-first with id tie-break.
func (s *BeliefStore) list(match func(*domain.Belief) bool) []*domain.Belief {
	s.db.mu.RLock()
	out := make([]*domain.Belief, 0)
	for _, b := range s.db.beliefs {
		if match(b) {
			out = append(out, b.Clone())
		}
	}
	s.db.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type ConflictStore struct {
	db *DB
}

func NewConflictStore(db *DB) *ConflictStore {
	return &ConflictStore{db: db}
}

func (s *ConflictStore) Put(ctx context.Context, c *domain.BeliefConflict) error {
	if c.ID == "" {
		return domain.NewError(domain.KindInvalidInput, "conflict id not assigned").
			WithDetail("field", "id")
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.conflicts[c.ID] = c.Clone()
	return nil
}

func (s *ConflictStore) Get(ctx context.Context, id string) (*domain.BeliefConflict, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	c, ok := s.db.conflicts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (s *ConflictStore) Remove(ctx context.Context, id string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.conflicts[id]; !ok {
		return ErrNotFound
	}
	delete(s.db.conflicts, id)
	return nil
}

func (s *ConflictStore) ListByAgent(ctx context.Context, agentID string, includeResolved bool) ([]*domain.BeliefConflict, error) {
	s.db.mu.RLock()
	out := make([]*domain.BeliefConflict, 0)
	for _, c := range s.db.conflicts {
		if c.AgentID != agentID {
			continue
		}
		if !includeResolved && c.Resolved {
			continue
		}
		out = append(out, c.Clone())
	}
	s.db.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].DetectedAt.After(out[j].DetectedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *ConflictStore) Count(ctx context.Context) (int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return len(s.db.conflicts), nil
}
