package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doxalabs/doxa/internal/domain"
)

const relationshipColumns = `id, agent_id, source_belief_id, target_belief_id, type,
	strength, metadata, effective_from, effective_until, deprecation_reason, active, created_at`

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

	metadataJSON, err := encodeJSON(r.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.db.sql.ExecContext(ctx,
		`INSERT INTO belief_relationships (id, agent_id, source_belief_id, target_belief_id,
			type, strength, metadata, effective_from, effective_until, deprecation_reason, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			source_belief_id = excluded.source_belief_id,
			target_belief_id = excluded.target_belief_id,
			type = excluded.type,
			strength = excluded.strength,
			metadata = excluded.metadata,
			effective_from = excluded.effective_from,
			effective_until = excluded.effective_until,
			deprecation_reason = excluded.deprecation_reason,
			active = excluded.active`,
		r.ID, r.AgentID, r.SourceBeliefID, r.TargetBeliefID,
		string(r.Type), r.Strength, metadataJSON, toUnixNano(r.EffectiveFrom), toNullableNano(r.EffectiveUntil),
		r.DeprecationReason, boolToInt(r.Active), toUnixNano(r.CreatedAt),
	)
	return err
}

func (s *GraphStore) GetRelationship(ctx context.Context, id string) (*domain.BeliefRelationship, error) {
	r, err := scanRelationshipRow(s.db.sql.QueryRowContext(ctx,
		`SELECT `+relationshipColumns+` FROM belief_relationships WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

func (s *GraphStore) DeleteRelationship(ctx context.Context, id string) error {
	res, err := s.db.sql.ExecContext(ctx, `DELETE FROM belief_relationships WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GraphStore) ListByBelief(ctx context.Context, beliefID string, dir domain.Direction, includeInactive bool) ([]*domain.BeliefRelationship, error) {
	var where string
	switch dir {
	case domain.DirectionOut:
		where = `source_belief_id = ?`
	case domain.DirectionIn:
		where = `target_belief_id = ?`
	default:
		where = `(source_belief_id = ? OR target_belief_id = ?)`
	}

	args := []any{beliefID}
	if strings.Count(where, "?") == 2 {
		args = append(args, beliefID)
	}
	args = append(args, boolToInt(includeInactive))

	return s.list(ctx,
		`SELECT `+relationshipColumns+` FROM belief_relationships
		 WHERE `+where+` AND (active = 1 OR ?)
		 ORDER BY created_at DESC, id`,
		args...,
	)
}

func (s *GraphStore) ListByAgent(ctx context.Context, agentID string, includeInactive bool) ([]*domain.BeliefRelationship, error) {
	return s.list(ctx,
		`SELECT `+relationshipColumns+` FROM belief_relationships
		 WHERE agent_id = ? AND (active = 1 OR ?)
		 ORDER BY created_at DESC, id`,
		agentID, boolToInt(includeInactive),
	)
}

func (s *GraphStore) ListByType(ctx context.Context, agentID string, t domain.RelationType, includeInactive bool) ([]*domain.BeliefRelationship, error) {
	return s.list(ctx,
		`SELECT `+relationshipColumns+` FROM belief_relationships
		 WHERE (? = '' OR agent_id = ?) AND type = ? AND (active = 1 OR ?)
		 ORDER BY created_at DESC, id`,
		agentID, agentID, string(t), boolToInt(includeInactive),
	)
}

func (s *GraphStore) ActiveDeprecatingEdge(ctx context.Context, sourceID, targetID string) (*domain.BeliefRelationship, error) {
	placeholders := make([]string, 0, len(domain.DeprecatingRelations))
	args := []any{sourceID, targetID}
	for t := range domain.DeprecatingRelations {
		placeholders = append(placeholders, "?")
		args = append(args, string(t))
	}

	r, err := scanRelationshipRow(s.db.sql.QueryRowContext(ctx,
		`SELECT `+relationshipColumns+` FROM belief_relationships
		 WHERE source_belief_id = ? AND target_belief_id = ? AND active = 1
		   AND type IN (`+strings.Join(placeholders, ", ")+`)
		 LIMIT 1`,
		args...,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

func (s *GraphStore) RemoveInactiveOlderThan(ctx context.Context, agentID string, cutoff time.Time) (int, error) {
	res, err := s.db.sql.ExecContext(ctx,
		`DELETE FROM belief_relationships
		 WHERE active = 0 AND created_at < ? AND (? = '' OR agent_id = ?)`,
		toUnixNano(cutoff), agentID, agentID,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *GraphStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.sql.QueryRowContext(ctx, `SELECT count(*) FROM belief_relationships`).Scan(&n)
	return n, err
}

func (s *GraphStore) list(ctx context.Context, query string, args ...any) ([]*domain.BeliefRelationship, error) {
	rows, err := s.db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.BeliefRelationship, 0)
	for rows.Next() {
		r, err := scanRelationshipRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRelationshipRow(row rowScanner) (*domain.BeliefRelationship, error) {
	r := &domain.BeliefRelationship{}
	var relType, metadataJSON string
	var effectiveFrom, createdAt int64
	var effectiveUntil *int64
	var active int

	err := row.Scan(
		&r.ID, &r.AgentID, &r.SourceBeliefID, &r.TargetBeliefID, &relType,
		&r.Strength, &metadataJSON, &effectiveFrom, &effectiveUntil, &r.DeprecationReason, &active, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	r.Type = domain.RelationType(relType)
	r.EffectiveFrom = fromUnixNano(effectiveFrom)
	r.EffectiveUntil = fromNullableNano(effectiveUntil)
	r.Active = active != 0
	r.CreatedAt = fromUnixNano(createdAt)
	if err := decodeJSON(metadataJSON, &r.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return r, nil
}

// Verify interface compliance at compile time
var _ domain.GraphStore = (*GraphStore)(nil)
