package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/doxalabs/doxa/internal/domain"
	"github.com/doxalabs/doxa/internal/similarity"
)

const memoryColumns = `id, agent_id, content, category, metadata, created_at,
	last_accessed, relevance_score, version, access_count, embedding::text, embedding_norm`

type MemoryStore struct {
	db *pgxpool.Pool
}

func NewMemoryStore(db *DB) *MemoryStore {
	return &MemoryStore{db: db.pool}
}

// Put inserts or replaces by id. On replace the stored version must be lower
// than the incoming one.
func (s *MemoryStore) Put(ctx context.Context, m *domain.MemoryRecord) error {
	if m.ID == "" {
		return domain.NewError(domain.KindInvalidInput, "memory id not assigned").
			WithDetail("field", "id")
	}

	categoryJSON, err := json.Marshal(m.Category)
	if err != nil {
		return fmt.Errorf("marshal category: %w", err)
	}
	metadataJSON, err := json.Marshal(m.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	var embedding *pgvector.Vector
	if len(m.Embedding) > 0 {
		v := pgvector.NewVector(m.Embedding)
		embedding = &v
	}

	tag, err := s.db.Exec(ctx,
		`INSERT INTO memories (id, agent_id, content, category, metadata, created_at,
			last_accessed, relevance_score, version, access_count, embedding, embedding_norm)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			category = EXCLUDED.category,
			metadata = EXCLUDED.metadata,
			last_accessed = EXCLUDED.last_accessed,
			relevance_score = EXCLUDED.relevance_score,
			version = EXCLUDED.version,
			access_count = EXCLUDED.access_count,
			embedding = EXCLUDED.embedding,
			embedding_norm = EXCLUDED.embedding_norm
		 WHERE memories.version < EXCLUDED.version`,
		m.ID, m.AgentID, m.Content, categoryJSON, metadataJSON, m.CreatedAt,
		m.LastAccessed, m.RelevanceScore, m.Version, m.AccessCount, embedding, m.EmbeddingNorm,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.Errorf(domain.KindInvalidInput,
			"memory version must increase on replace: got %d", m.Version).
			WithDetail("field", "version").
			WithDetail("value", m.Version)
	}
	return nil
}

// Get bumps last-accessed and access count atomically with the read.
func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.MemoryRecord, error) {
	row := s.db.QueryRow(ctx,
		`UPDATE memories SET last_accessed = now(), access_count = access_count + 1
		 WHERE id = $1
		 RETURNING `+memoryColumns,
		id,
	)
	m, err := scanMemory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (s *MemoryStore) GetMany(ctx context.Context, ids []string) (map[string]*domain.MemoryRecord, error) {
	if len(ids) == 0 {
		return map[string]*domain.MemoryRecord{}, nil
	}
	rows, err := s.db.Query(ctx,
		`UPDATE memories SET last_accessed = now(), access_count = access_count + 1
		 WHERE id = ANY($1)
		 RETURNING `+memoryColumns,
		ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*domain.MemoryRecord, len(ids))
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out[m.ID] = m
	}
	return out, rows.Err()
}

func (s *MemoryStore) Remove(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM memories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MemoryStore) RemoveMany(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}
	rows, err := s.db.Query(ctx, `DELETE FROM memories WHERE id = ANY($1) RETURNING id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	removed := make([]string, 0, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		removed = append(removed, id)
	}
	return removed, rows.Err()
}

// SearchSimilar ranks with pgvector when the query carries a vector, text
// scoring in-process otherwise. Records without embeddings don't participate
// in the vector path.
func (s *MemoryStore) SearchSimilar(ctx context.Context, q domain.SimilarityQuery) ([]domain.ScoredMemory, error) {
	if len(q.Vector) > 0 {
		return s.searchVector(ctx, q)
	}
	return s.searchText(ctx, q)
}

func (s *MemoryStore) searchVector(ctx context.Context, q domain.SimilarityQuery) ([]domain.ScoredMemory, error) {
	var scoreExpr string
	switch q.Metric {
	case domain.MetricCosine:
		scoreExpr = `1 - (embedding <=> $1)`
	case domain.MetricDot:
		scoreExpr = `-1 * (embedding <#> $1)`
	case domain.MetricEuclidean:
		scoreExpr = `1 / (1 + (embedding <-> $1))`
	default:
		return nil, domain.NewError(domain.KindInvalidInput,
			fmt.Sprintf("unknown similarity metric %q", q.Metric)).
			WithDetail("field", "metric")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	vec := pgvector.NewVector(q.Vector)
	rows, err := s.db.Query(ctx, fmt.Sprintf(
		`SELECT %s, %s AS score
		 FROM memories
		 WHERE agent_id = $2 AND embedding IS NOT NULL AND %s >= $3
		 ORDER BY score DESC, last_accessed DESC
		 LIMIT $4`,
		memoryColumns, scoreExpr, scoreExpr),
		vec, q.AgentID, q.Floor, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("vector search query: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ScoredMemory, 0, limit)
	for rows.Next() {
		m, score, err := scanScoredMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.ScoredMemory{Memory: m, Score: score})
	}
	return out, rows.Err()
}

// searchText pulls the agent's records and scores content in-process; the
// scorer may call a provider, which SQL can't.
func (s *MemoryStore) searchText(ctx context.Context, q domain.SimilarityQuery) ([]domain.ScoredMemory, error) {
	candidates, err := s.ListByAgent(ctx, q.AgentID, 0)
	if err != nil {
		return nil, err
	}

	scored := make([]domain.ScoredMemory, 0, len(candidates))
	for _, m := range candidates {
		var score float64
		if q.TextScorer != nil {
			score, err = q.TextScorer(ctx, q.Text, m.Content)
			if err != nil {
				return nil, err
			}
		} else {
			score = similarity.TokenOverlap(q.Text, m.Content)
		}
		if score < q.Floor {
			continue
		}
		scored = append(scored, domain.ScoredMemory{Memory: m, Score: score})
	}

	sortScoredMemories(scored)
	if q.Limit > 0 && len(scored) > q.Limit {
		scored = scored[:q.Limit]
	}
	return scored, nil
}

func (s *MemoryStore) ListByAgent(ctx context.Context, agentID string, limit int) ([]*domain.MemoryRecord, error) {
	return s.list(ctx,
		`SELECT `+memoryColumns+` FROM memories
		 WHERE agent_id = $1
		 ORDER BY created_at DESC, id`+limitClause(limit),
		agentID,
	)
}

func (s *MemoryStore) ListByCategory(ctx context.Context, category, agentID string, limit int) ([]*domain.MemoryRecord, error) {
	return s.list(ctx,
		`SELECT `+memoryColumns+` FROM memories
		 WHERE ($1 = '' OR agent_id = $1) AND lower(category->>'primary') = $2
		 ORDER BY created_at DESC, id`+limitClause(limit),
		agentID, domain.NormalizeCategory(category),
	)
}

func (s *MemoryStore) ListOlderThan(ctx context.Context, age time.Duration, agentID string, limit int) ([]*domain.MemoryRecord, error) {
	cutoff := time.Now().Add(-age)
	return s.list(ctx,
		`SELECT `+memoryColumns+` FROM memories
		 WHERE ($1 = '' OR agent_id = $1) AND created_at < $2
		 ORDER BY created_at DESC, id`+limitClause(limit),
		agentID, cutoff,
	)
}

func (s *MemoryStore) CountByAgent(ctx context.Context, agentID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM memories WHERE agent_id = $1`, agentID).Scan(&n)
	return n, err
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM memories`).Scan(&n)
	return n, err
}

func (s *MemoryStore) list(ctx context.Context, query string, args ...any) ([]*domain.MemoryRecord, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.MemoryRecord, 0)
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMemory(row pgx.Row) (*domain.MemoryRecord, error) {
	m := &domain.MemoryRecord{}
	var categoryJSON, metadataJSON []byte
	var embeddingText *string

	err := row.Scan(
		&m.ID, &m.AgentID, &m.Content, &categoryJSON, &metadataJSON, &m.CreatedAt,
		&m.LastAccessed, &m.RelevanceScore, &m.Version, &m.AccessCount, &embeddingText, &m.EmbeddingNorm,
	)
	if err != nil {
		return nil, err
	}
	if err := decodeMemoryFields(m, categoryJSON, metadataJSON, embeddingText); err != nil {
		return nil, err
	}
	return m, nil
}

func scanScoredMemory(rows pgx.Rows) (*domain.MemoryRecord, float64, error) {
	m := &domain.MemoryRecord{}
	var categoryJSON, metadataJSON []byte
	var embeddingText *string
	var score float64

	err := rows.Scan(
		&m.ID, &m.AgentID, &m.Content, &categoryJSON, &metadataJSON, &m.CreatedAt,
		&m.LastAccessed, &m.RelevanceScore, &m.Version, &m.AccessCount, &embeddingText, &m.EmbeddingNorm,
		&score,
	)
	if err != nil {
		return nil, 0, err
	}
	if err := decodeMemoryFields(m, categoryJSON, metadataJSON, embeddingText); err != nil {
		return nil, 0, err
	}
	return m, score, nil
}

func decodeMemoryFields(m *domain.MemoryRecord, categoryJSON, metadataJSON []byte, embeddingText *string) error {
	if len(categoryJSON) > 0 {
		if err := json.Unmarshal(categoryJSON, &m.Category); err != nil {
			return fmt.Errorf("unmarshal category: %w", err)
		}
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &m.Metadata); err != nil {
			return fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if embeddingText != nil {
		var vec pgvector.Vector
		if err := vec.Scan(*embeddingText); err != nil {
			return fmt.Errorf("parse embedding: %w", err)
		}
		m.Embedding = vec.Slice()
	}
	return nil
}

func sortScoredMemories(scored []domain.ScoredMemory) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Memory.LastAccessed.After(scored[j].Memory.LastAccessed)
	})
}

func limitClause(limit int) string {
	if limit > 0 {
		return fmt.Sprintf(" LIMIT %d", limit)
	}
	return ""
}

// Verify interface compliance at compile time
var _ domain.MemoryStore = (*MemoryStore)(nil)
