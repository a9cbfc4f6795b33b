package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/doxalabs/doxa/internal/domain"
)

const relationshipColumns = `id, agent_id, source_belief_id, target_belief_id, type,
	strength, metadata, effective_from, effective_until, deprecation_reason, active, created_at`

// deprecatingTypes mirrors domain.DeprecatingRelations for SQL filters.
var deprecatingTypes = []string{
	string(domain.RelationSupersedes),
	string(domain.RelationDeprecates),
	string(domain.RelationReplaces),
	string(domain.RelationUpdates),
}

type GraphStore struct {
	db *pgxpool.Pool
}

func NewGraphStore(db *DB) *GraphStore {
	return &GraphStore{db: db.pool}
}

func (s *GraphStore) PutRelationship(ctx context.Context, r *domain.BeliefRelationship) error {
	if r.ID == "" {
		return domain.NewError(domain.KindInvalidInput, "relationship id not assigned").
			WithDetail("field", "id")
	}

	metadataJSON, err := json.Marshal(r.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO belief_relationships (id, agent_id, source_belief_id, target_belief_id,
			type, strength, metadata, effective_from, effective_until, deprecation_reason, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
			source_belief_id = EXCLUDED.source_belief_id,
			target_belief_id = EXCLUDED.target_belief_id,
			type = EXCLUDED.type,
			strength = EXCLUDED.strength,
			metadata = EXCLUDED.metadata,
			effective_from = EXCLUDED.effective_from,
			effective_until = EXCLUDED.effective_until,
			deprecation_reason = EXCLUDED.deprecation_reason,
			active = EXCLUDED.active`,
		r.ID, r.AgentID, r.SourceBeliefID, r.TargetBeliefID,
		string(r.Type), r.Strength, metadataJSON, r.EffectiveFrom, r.EffectiveUntil, r.DeprecationReason, r.Active, r.CreatedAt,
	)
	return err
}

func (s *GraphStore) GetRelationship(ctx context.Context, id string) (*domain.BeliefRelationship, error) {
	r, err := scanRelationship(s.db.QueryRow(ctx,
		`SELECT `+relationshipColumns+` FROM belief_relationships WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

func (s *GraphStore) DeleteRelationship(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM belief_relationships WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GraphStore) ListByBelief(ctx context.Context, beliefID string, dir domain.Direction, includeInactive bool) ([]*domain.BeliefRelationship, error) {
	var where string
	switch dir {
	case domain.DirectionOut:
		where = `source_belief_id = $1`
	case domain.DirectionIn:
		where = `target_belief_id = $1`
	default:
		where = `(source_belief_id = $1 OR target_belief_id = $1)`
	}

	return s.list(ctx,
		`SELECT `+relationshipColumns+` FROM belief_relationships
		 WHERE `+where+` AND (active OR $2)
		 ORDER BY created_at DESC, id`,
		beliefID, includeInactive,
	)
}

func (s *GraphStore) ListByAgent(ctx context.Context, agentID string, includeInactive bool) ([]*domain.BeliefRelationship, error) {
	return s.list(ctx,
		`SELECT `+relationshipColumns+` FROM belief_relationships
		 WHERE agent_id = $1 AND (active OR $2)
		 ORDER BY created_at DESC, id`,
		agentID, includeInactive,
	)
}

func (s *GraphStore) ListByType(ctx context.Context, agentID string, t domain.RelationType, includeInactive bool) ([]*domain.BeliefRelationship, error) {
	return s.list(ctx,
		`SELECT `+relationshipColumns+` FROM belief_relationships
		 WHERE ($1 = '' OR agent_id = $1) AND type = $2 AND (active OR $3)
		 ORDER BY created_at DESC, id`,
		agentID, string(t), includeInactive,
	)
}

func (s *GraphStore) ActiveDeprecatingEdge(ctx context.Context, sourceID, targetID string) (*domain.BeliefRelationship, error) {
	r, err := scanRelationship(s.db.QueryRow(ctx,
		`SELECT `+relationshipColumns+` FROM belief_relationships
		 WHERE source_belief_id = $1 AND target_belief_id = $2 AND active AND type = ANY($3)
		 LIMIT 1`,
		sourceID, targetID, deprecatingTypes,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

func (s *GraphStore) RemoveInactiveOlderThan(ctx context.Context, agentID string, cutoff time.Time) (int, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM belief_relationships
		 WHERE NOT active AND created_at < $1 AND ($2 = '' OR agent_id = $2)`,
		cutoff, agentID,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *GraphStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM belief_relationships`).Scan(&n)
	return n, err
}

func (s *GraphStore) list(ctx context.Context, query string, args ...any) ([]*domain.BeliefRelationship, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.BeliefRelationship, 0)
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRelationship(row pgx.Row) (*domain.BeliefRelationship, error) {
	r := &domain.BeliefRelationship{}
	var relType string
	var metadataJSON []byte

	err := row.Scan(
		&r.ID, &r.AgentID, &r.SourceBeliefID, &r.TargetBeliefID, &relType,
		&r.Strength, &metadataJSON, &r.EffectiveFrom, &r.EffectiveUntil, &r.DeprecationReason, &r.Active, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Type = domain.RelationType(relType)
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &r.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return r, nil
}

// Verify interface compliance at compile time
var _ domain.GraphStore = (*GraphStore)(nil)
