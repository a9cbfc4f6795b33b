package store

import (
	"context"
	"errors"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/doxalabs/doxa/internal/domain"
)

const beliefColumns = `id, agent_id, statement, confidence, category,
	evidence_memory_ids, tags, reinforcement_count, created_at, last_updated, active`

type BeliefStore struct {
	db *pgxpool.Pool
}

func NewBeliefStore(db *DB) *BeliefStore {
	return &BeliefStore{db: db.pool}
}

func (s *BeliefStore) Put(ctx context.Context, b *domain.Belief) error {
	if b.ID == "" {
		return domain.NewError(domain.KindInvalidInput, "belief id not assigned").
			WithDetail("field", "id")
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO beliefs (id, agent_id, statement, confidence, category,
			evidence_memory_ids, tags, reinforcement_count, created_at, last_updated, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
			statement = EXCLUDED.statement,
			confidence = EXCLUDED.confidence,
			category = EXCLUDED.category,
			evidence_memory_ids = EXCLUDED.evidence_memory_ids,
			tags = EXCLUDED.tags,
			reinforcement_count = EXCLUDED.reinforcement_count,
			last_updated = EXCLUDED.last_updated,
			active = EXCLUDED.active`,
		b.ID, b.AgentID, b.Statement, b.Confidence, b.Category,
		b.EvidenceMemoryIDs, b.Tags, b.ReinforcementCount, b.CreatedAt, b.LastUpdated, b.Active,
	)
	return err
}

func (s *BeliefStore) Get(ctx context.Context, id string) (*domain.Belief, error) {
	b, err := scanBelief(s.db.QueryRow(ctx,
		`SELECT `+beliefColumns+` FROM beliefs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *BeliefStore) GetMany(ctx context.Context, ids []string) (map[string]*domain.Belief, error) {
	if len(ids) == 0 {
		return map[string]*domain.Belief{}, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+beliefColumns+` FROM beliefs WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*domain.Belief, len(ids))
	for rows.Next() {
		b, err := scanBelief(rows)
		if err != nil {
			return nil, err
		}
		out[b.ID] = b
	}
	return out, rows.Err()
}

func (s *BeliefStore) Remove(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM beliefs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *BeliefStore) ListByAgent(ctx context.Context, agentID string, includeInactive bool) ([]*domain.Belief, error) {
	return s.list(ctx,
		`SELECT `+beliefColumns+` FROM beliefs
		 WHERE agent_id = $1 AND (active OR $2)
		 ORDER BY created_at DESC, id`,
		agentID, includeInactive,
	)
}

func (s *BeliefStore) ListByCategory(ctx context.Context, category, agentID string) ([]*domain.Belief, error) {
	return s.list(ctx,
		`SELECT `+beliefColumns+` FROM beliefs
		 WHERE ($1 = '' OR agent_id = $1) AND active AND lower(category) = $2
		 ORDER BY created_at DESC, id`,
		agentID, domain.NormalizeCategory(category),
	)
}

// FindSimilar scores the agent's active beliefs in-process; the scorer may
// call a provider, which SQL can't.
func (s *BeliefStore) FindSimilar(ctx context.Context, statement, agentID string, floor float64, k int, scorer domain.StatementScorer) ([]domain.ScoredBelief, error) {
	candidates, err := s.ListByAgent(ctx, agentID, false)
	if err != nil {
		return nil, err
	}

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
	rows, err := s.db.Query(ctx,
		`SELECT lower(category), count(*) FROM beliefs
		 WHERE agent_id = $1 AND active
		 GROUP BY lower(category)`,
		agentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, err
		}
		out[category] = n
	}
	return out, rows.Err()
}

func (s *BeliefStore) ConfidenceDistribution(ctx context.Context, agentID string, high, medium float64) (map[string]int, error) {
	rows, err := s.db.Query(ctx,
		`SELECT CASE
			WHEN confidence >= $2 THEN 'high'
			WHEN confidence >= $3 THEN 'medium'
			ELSE 'low'
		 END AS bucket, count(*)
		 FROM beliefs
		 WHERE agent_id = $1 AND active
		 GROUP BY bucket`,
		agentID, high, medium,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{"high": 0, "medium": 0, "low": 0}
	for rows.Next() {
		var bucket string
		var n int
		if err := rows.Scan(&bucket, &n); err != nil {
			return nil, err
		}
		out[bucket] = n
	}
	return out, rows.Err()
}

func (s *BeliefStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM beliefs`).Scan(&n)
	return n, err
}

func (s *BeliefStore) list(ctx context.Context, query string, args ...any) ([]*domain.Belief, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.Belief, 0)
	for rows.Next() {
		b, err := scanBelief(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBelief(row pgx.Row) (*domain.Belief, error) {
	b := &domain.Belief{}
	err := row.Scan(
		&b.ID, &b.AgentID, &b.Statement, &b.Confidence, &b.Category,
		&b.EvidenceMemoryIDs, &b.Tags, &b.ReinforcementCount, &b.CreatedAt, &b.LastUpdated, &b.Active,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

type ConflictStore struct {
	db *pgxpool.Pool
}

func NewConflictStore(db *DB) *ConflictStore {
	return &ConflictStore{db: db.pool}
}

func (s *ConflictStore) Put(ctx context.Context, c *domain.BeliefConflict) error {
	if c.ID == "" {
		return domain.NewError(domain.KindInvalidInput, "conflict id not assigned").
			WithDetail("field", "id")
	}

	var conflicting, memory *string
	if c.ConflictingBeliefID != "" {
		conflicting = &c.ConflictingBeliefID
	}
	if c.MemoryID != "" {
		memory = &c.MemoryID
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO belief_conflicts (id, agent_id, belief_id, conflicting_belief_id,
			memory_id, detected_at, resolved, resolved_at, resolution, resolution_details, severity)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
			resolved = EXCLUDED.resolved,
			resolved_at = EXCLUDED.resolved_at,
			resolution = EXCLUDED.resolution,
			resolution_details = EXCLUDED.resolution_details,
			severity = EXCLUDED.severity`,
		c.ID, c.AgentID, c.BeliefID, conflicting,
		memory, c.DetectedAt, c.Resolved, c.ResolvedAt, string(c.Resolution), c.ResolutionDetails, c.Severity,
	)
	return err
}

func (s *ConflictStore) Get(ctx context.Context, id string) (*domain.BeliefConflict, error) {
	c, err := scanConflict(s.db.QueryRow(ctx,
		`SELECT id, agent_id, belief_id, conflicting_belief_id, memory_id,
			detected_at, resolved, resolved_at, resolution, resolution_details, severity
		 FROM belief_conflicts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (s *ConflictStore) Remove(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM belief_conflicts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ConflictStore) ListByAgent(ctx context.Context, agentID string, includeResolved bool) ([]*domain.BeliefConflict, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, agent_id, belief_id, conflicting_belief_id, memory_id,
			detected_at, resolved, resolved_at, resolution, resolution_details, severity
		 FROM belief_conflicts
		 WHERE agent_id = $1 AND (NOT resolved OR $2)
		 ORDER BY detected_at DESC, id`,
		agentID, includeResolved,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.BeliefConflict, 0)
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *ConflictStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM belief_conflicts`).Scan(&n)
	return n, err
}

func scanConflict(row pgx.Row) (*domain.BeliefConflict, error) {
	c := &domain.BeliefConflict{}
	var conflicting, memory *string
	var resolution string

	err := row.Scan(
		&c.ID, &c.AgentID, &c.BeliefID, &conflicting, &memory,
		&c.DetectedAt, &c.Resolved, &c.ResolvedAt, &resolution, &c.ResolutionDetails, &c.Severity,
	)
	if err != nil {
		return nil, err
	}
	if conflicting != nil {
		c.ConflictingBeliefID = *conflicting
	}
	if memory != nil {
		c.MemoryID = *memory
	}
	c.Resolution = domain.ConflictResolution(resolution)
	return c, nil
}

// Verify interface compliance at compile time
var _ domain.BeliefStore = (*BeliefStore)(nil)
var _ domain.ConflictStore = (*ConflictStore)(nil)
