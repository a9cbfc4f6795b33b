package inmem

import (
	"context"
	"sort"
	"time"

	"github.com/doxalabs/doxa/internal/domain"
	"github.com/doxalabs/doxa/internal/similarity"
)

type MemoryStore struct {
	db *DB
}

func NewMemoryStore(db *DB) *MemoryStore {
	return &MemoryStore{db: db}
}

func (s *MemoryStore) Put(ctx context.Context, m *domain.MemoryRecord) error {
	if m.ID == "" {
		return domain.NewError(domain.KindInvalidInput, "memory id not assigned").
			WithDetail("field", "id")
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if existing, ok := s.db.memories[m.ID]; ok && m.Version <= existing.Version {
		return domain.Errorf(domain.KindInvalidInput,
			"memory version must increase on replace: have %d, got %d",
			existing.Version, m.Version).
			WithDetail("field", "version").
			WithDetail("value", m.Version)
	}

	s.db.memories[m.ID] = m.Clone()
	return nil
}

// Get bumps last-accessed and access count atomically with the read, so it
// takes the write lock.
func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.MemoryRecord, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	m, ok := s.db.memories[id]
	if !ok {
		return nil, ErrNotFound
	}
	m.LastAccessed = time.Now()
	m.AccessCount++
	return m.Clone(), nil
}

func (s *MemoryStore) GetMany(ctx context.Context, ids []string) (map[string]*domain.MemoryRecord, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	out := make(map[string]*domain.MemoryRecord, len(ids))
	now := time.Now()
	for _, id := range ids {
		if m, ok := s.db.memories[id]; ok {
			m.LastAccessed = now
			m.AccessCount++
			out[id] = m.Clone()
		}
	}
	return out, nil
}

func (s *MemoryStore) Remove(ctx context.Context, id string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.memories[id]; !ok {
		return ErrNotFound
	}
	delete(s.db.memories, id)
	return nil
}

func (s *MemoryStore) RemoveMany(ctx context.Context, ids []string) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	removed := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := s.db.memories[id]; ok {
			delete(s.db.memories, id)
			removed = append(removed, id)
		}
	}
	return removed, nil
}

// SearchSimilar scores with the query's vector metric when a vector is
// present (records without embeddings don't participate), otherwise with the
// query's text scorer. Results under the floor are dropped; ties on score
// break by lastAccessed descending.
func (s *MemoryStore) SearchSimilar(ctx context.Context, q domain.SimilarityQuery) ([]domain.ScoredMemory, error) {
	s.db.mu.RLock()
	candidates := make([]*domain.MemoryRecord, 0, len(s.db.memories))
	for _, m := range s.db.memories {
		if q.AgentID != "" && m.AgentID != q.AgentID {
			continue
		}
		candidates = append(candidates, m.Clone())
	}
	s.db.mu.RUnlock()

	var vectorFn similarity.Func
	if len(q.Vector) > 0 {
		fn, err := similarity.ForMetric(q.Metric)
		if err != nil {
			return nil, domain.NewError(domain.KindInvalidInput, err.Error()).
				WithDetail("field", "metric")
		}
		vectorFn = fn
	}

	scored := make([]domain.ScoredMemory, 0, len(candidates))
	for _, m := range candidates {
		var score float64
		switch {
		case vectorFn != nil && len(m.Embedding) > 0:
			score = vectorFn(q.Vector, m.Embedding)
		case vectorFn != nil:
			continue
		case q.TextScorer != nil:
			sc, err := q.TextScorer(ctx, q.Text, m.Content)
			if err != nil {
				return nil, err
			}
			score = sc
		default:
			score = similarity.TokenOverlap(q.Text, m.Content)
		}
		if score < q.Floor {
			continue
		}
		scored = append(scored, domain.ScoredMemory{Memory: m, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Memory.LastAccessed.After(scored[j].Memory.LastAccessed)
	})

	if q.Limit > 0 && len(scored) > q.Limit {
		scored = scored[:q.Limit]
	}
	return scored, nil
}

func (s *MemoryStore) ListByAgent(ctx context.Context, agentID string, limit int) ([]*domain.MemoryRecord, error) {
	return s.list(func(m *domain.MemoryRecord) bool {
		return m.AgentID == agentID
	}, limit), nil
}

func (s *MemoryStore) ListByCategory(ctx context.Context, category, agentID string, limit int) ([]*domain.MemoryRecord, error) {
	want := domain.NormalizeCategory(category)
	return s.list(func(m *domain.MemoryRecord) bool {
		if agentID != "" && m.AgentID != agentID {
			return false
		}
		return domain.NormalizeCategory(m.Category.Primary) == want
	}, limit), nil
}

func (s *MemoryStore) ListOlderThan(ctx context.Context, age time.Duration, agentID string, limit int) ([]*domain.MemoryRecord, error) {
	cutoff := time.Now().Add(-age)
	return s.list(func(m *domain.MemoryRecord) bool {
		if agentID != "" && m.AgentID != agentID {
			return false
		}
		return m.CreatedAt.Before(cutoff)
	}, limit), nil
}

func (s *MemoryStore) CountByAgent(ctx context.Context, agentID string) (int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	n := 0
	for _, m := range s.db.memories {
		if m.AgentID == agentID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return len(s.db.memories), nil
}

// list returns matching records newest-first, id as the final tie-break so
// ordering is stable across map iteration order.
func (s *MemoryStore) list(match func(*domain.MemoryRecord) bool, limit int) []*domain.MemoryRecord {
	s.db.mu.RLock()
	out := make([]*domain.MemoryRecord, 0)
	for _, m := range s.db.memories {
		if match(m) {
			out = append(out, m.Clone())
		}
	}
	s.db.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
