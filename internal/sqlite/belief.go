package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/doxalabs/doxa/internal/domain"
)

const beliefColumns = `id, agent_id, statement, confidence, category,
	evidence_memory_ids, tags, reinforcement_count, created_at, last_updated, active`

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

	evidenceJSON, err := encodeJSON(b.EvidenceMemoryIDs)
	if err != nil {
		return fmt.Errorf("marshal evidence ids: %w", err)
	}
	tagsJSON, err := encodeJSON(b.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = s.db.sql.ExecContext(ctx,
		`INSERT INTO beliefs (id, agent_id, statement, confidence, category,
			evidence_memory_ids, tags, reinforcement_count, created_at, last_updated, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			statement = excluded.statement,
			confidence = excluded.confidence,
			category = excluded.category,
			evidence_memory_ids = excluded.evidence_memory_ids,
			tags = excluded.tags,
			reinforcement_count = excluded.reinforcement_count,
			last_updated = excluded.last_updated,
			active = excluded.active`,
		b.ID, b.AgentID, b.Statement, b.Confidence, b.Category,
		evidenceJSON, tagsJSON, b.ReinforcementCount, toUnixNano(b.CreatedAt), toUnixNano(b.LastUpdated), boolToInt(b.Active),
	)
	return err
}

func (s *BeliefStore) Get(ctx context.Context, id string) (*domain.Belief, error) {
	b, err := scanBeliefRow(s.db.sql.QueryRowContext(ctx,
		`SELECT `+beliefColumns+` FROM beliefs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *BeliefStore) GetMany(ctx context.Context, ids []string) (map[string]*domain.Belief, error) {
	out := make(map[string]*domain.Belief, len(ids))
	for _, id := range ids {
		b, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out[id] = b
	}
	return out, nil
}

func (s *BeliefStore) Remove(ctx context.Context, id string) error {
	res, err := s.db.sql.ExecContext(ctx, `DELETE FROM beliefs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *BeliefStore) ListByAgent(ctx context.Context, agentID string, includeInactive bool) ([]*domain.Belief, error) {
	return s.list(ctx,
		`SELECT `+beliefColumns+` FROM beliefs
		 WHERE agent_id = ? AND (active = 1 OR ?)
		 ORDER BY created_at DESC, id`,
		agentID, boolToInt(includeInactive),
	)
}

func (s *BeliefStore) ListByCategory(ctx context.Context, category, agentID string) ([]*domain.Belief, error) {
	return s.list(ctx,
		`SELECT `+beliefColumns+` FROM beliefs
		 WHERE (? = '' OR agent_id = ?) AND active = 1 AND lower(category) = ?
		 ORDER BY created_at DESC, id`,
		agentID, agentID, domain.NormalizeCategory(category),
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
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT lower(category), count(*) FROM beliefs
		 WHERE agent_id = ? AND active = 1
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
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT CASE
			WHEN confidence >= ? THEN 'high'
			WHEN confidence >= ? THEN 'medium'
			ELSE 'low'
		 END AS bucket, count(*)
		 FROM beliefs
		 WHERE agent_id = ? AND active = 1
		 GROUP BY bucket`,
		high, medium, agentID,
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
	err := s.db.sql.QueryRowContext(ctx, `SELECT count(*) FROM beliefs`).Scan(&n)
	return n, err
}

func (s *BeliefStore) list(ctx context.Context, query string, args ...any) ([]*domain.Belief, error) {
	rows, err := s.db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.Belief, 0)
	for rows.Next() {
		b, err := scanBeliefRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBeliefRow(row rowScanner) (*domain.Belief, error) {
	b := &domain.Belief{}
	var evidenceJSON, tagsJSON string
	var createdAt, lastUpdated int64
	var active int

	err := row.Scan(
		&b.ID, &b.AgentID, &b.Statement, &b.Confidence, &b.Category,
		&evidenceJSON, &tagsJSON, &b.ReinforcementCount, &createdAt, &lastUpdated, &active,
	)
	if err != nil {
		return nil, err
	}

	b.CreatedAt = fromUnixNano(createdAt)
	b.LastUpdated = fromUnixNano(lastUpdated)
	b.Active = active != 0
	if err := decodeJSON(evidenceJSON, &b.EvidenceMemoryIDs); err != nil {
		return nil, fmt.Errorf("unmarshal evidence ids: %w", err)
	}
	if err := decodeJSON(tagsJSON, &b.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	return b, nil
}

type ConflictStore struct {
	db *DB
}

func NewConflictStore(db *DB) *ConflictStore {
	return &ConflictStore{db: db}
}

const conflictColumns = `id, agent_id, belief_id, conflicting_belief_id, memory_id,
	detected_at, resolved, resolved_at, resolution, resolution_details, severity`

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

	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO belief_conflicts (id, agent_id, belief_id, conflicting_belief_id,
			memory_id, detected_at, resolved, resolved_at, resolution, resolution_details, severity)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			resolved = excluded.resolved,
			resolved_at = excluded.resolved_at,
			resolution = excluded.resolution,
			resolution_details = excluded.resolution_details,
			severity = excluded.severity`,
		c.ID, c.AgentID, c.BeliefID, conflicting,
		memory, toUnixNano(c.DetectedAt), boolToInt(c.Resolved), toNullableNano(c.ResolvedAt), string(c.Resolution), c.ResolutionDetails, c.Severity,
	)
	return err
}

func (s *ConflictStore) Get(ctx context.Context, id string) (*domain.BeliefConflict, error) {
	c, err := scanConflictRow(s.db.sql.QueryRowContext(ctx,
		`SELECT `+conflictColumns+` FROM belief_conflicts WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (s *ConflictStore) Remove(ctx context.Context, id string) error {
	res, err := s.db.sql.ExecContext(ctx, `DELETE FROM belief_conflicts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ConflictStore) ListByAgent(ctx context.Context, agentID string, includeResolved bool) ([]*domain.BeliefConflict, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT `+conflictColumns+` FROM belief_conflicts
		 WHERE agent_id = ? AND (resolved = 0 OR ?)
		 ORDER BY detected_at DESC, id`,
		agentID, boolToInt(includeResolved),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.BeliefConflict, 0)
	for rows.Next() {
		c, err := scanConflictRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *ConflictStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.sql.QueryRowContext(ctx, `SELECT count(*) FROM belief_conflicts`).Scan(&n)
	return n, err
}

func scanConflictRow(row rowScanner) (*domain.BeliefConflict, error) {
	c := &domain.BeliefConflict{}
	var conflicting, memory *string
	var resolution string
	var detectedAt int64
	var resolvedAt *int64
	var resolved int

	err := row.Scan(
		&c.ID, &c.AgentID, &c.BeliefID, &conflicting, &memory,
		&detectedAt, &resolved, &resolvedAt, &resolution, &c.ResolutionDetails, &c.Severity,
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
	c.DetectedAt = fromUnixNano(detectedAt)
	c.Resolved = resolved != 0
	c.ResolvedAt = fromNullableNano(resolvedAt)
	c.Resolution = domain.ConflictResolution(resolution)
	return c, nil
}

// Verify interface compliance at compile time
var _ domain.BeliefStore = (*BeliefStore)(nil)
var _ domain.ConflictStore = (*ConflictStore)(nil)
