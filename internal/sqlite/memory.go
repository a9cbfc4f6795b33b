package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/doxalabs/doxa/internal/domain"
	"github.com/doxalabs/doxa/internal/similarity"
)

const memoryColumns = `id, agent_id, content, category, metadata, created_at,
	last_accessed, relevance_score, version, access_count, embedding, embedding_norm`

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

	categoryJSON, err := encodeJSON(m.Category)
	if err != nil {
		return fmt.Errorf("marshal category: %w", err)
	}
	metadataJSON, err := encodeJSON(m.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	var embeddingJSON *string
	if len(m.Embedding) > 0 {
		enc, err := encodeJSON(m.Embedding)
		if err != nil {
			return fmt.Errorf("marshal embedding: %w", err)
		}
		embeddingJSON = &enc
	}

	res, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO memories (id, agent_id, content, category, metadata, created_at,
			last_accessed, relevance_score, version, access_count, embedding, embedding_norm)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			content = excluded.content,
			category = excluded.category,
			metadata = excluded.metadata,
			last_accessed = excluded.last_accessed,
			relevance_score = excluded.relevance_score,
			version = excluded.version,
			access_count = excluded.access_count,
			embedding = excluded.embedding,
			embedding_norm = excluded.embedding_norm
		 WHERE memories.version < excluded.version`,
		m.ID, m.AgentID, m.Content, categoryJSON, metadataJSON, toUnixNano(m.CreatedAt),
		toUnixNano(m.LastAccessed), m.RelevanceScore, m.Version, m.AccessCount, embeddingJSON, m.EmbeddingNorm,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.Errorf(domain.KindInvalidInput,
			"memory version must increase on replace: got %d", m.Version).
			WithDetail("field", "version").
			WithDetail("value", m.Version)
	}
	return nil
}

// Get bumps last-accessed and access count with the read.
func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.MemoryRecord, error) {
	if _, err := s.db.sql.ExecContext(ctx,
		`UPDATE memories SET last_accessed = ?, access_count = access_count + 1 WHERE id = ?`,
		toUnixNano(time.Now()), id,
	); err != nil {
		return nil, err
	}

	m, err := scanMemoryRow(s.db.sql.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (s *MemoryStore) GetMany(ctx context.Context, ids []string) (map[string]*domain.MemoryRecord, error) {
	out := make(map[string]*domain.MemoryRecord, len(ids))
	for _, id := range ids {
		m, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out[id] = m
	}
	return out, nil
}

func (s *MemoryStore) Remove(ctx context.Context, id string) error {
	res, err := s.db.sql.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MemoryStore) RemoveMany(ctx context.Context, ids []string) ([]string, error) {
	removed := make([]string, 0, len(ids))
	for _, id := range ids {
		switch err := s.Remove(ctx, id); {
		case err == nil:
			removed = append(removed, id)
		case errors.Is(err, ErrNotFound):
		default:
			return nil, err
		}
	}
	return removed, nil
}

// SearchSimilar decodes stored vectors and scores in-process; sqlite has no
// vector operators.
func (s *MemoryStore) SearchSimilar(ctx context.Context, q domain.SimilarityQuery) ([]domain.ScoredMemory, error) {
	candidates, err := s.ListByAgent(ctx, q.AgentID, 0)
	if err != nil {
		return nil, err
	}

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
	return s.list(ctx,
		`SELECT `+memoryColumns+` FROM memories
		 WHERE agent_id = ?
		 ORDER BY created_at DESC, id`+limitClause(limit),
		agentID,
	)
}

func (s *MemoryStore) ListByCategory(ctx context.Context, category, agentID string, limit int) ([]*domain.MemoryRecord, error) {
	all, err := s.list(ctx,
		`SELECT `+memoryColumns+` FROM memories
		 WHERE (? = '' OR agent_id = ?)
		 ORDER BY created_at DESC, id`,
		agentID, agentID,
	)
	if err != nil {
		return nil, err
	}

	// Category lives inside a JSON column; filter after decoding.
	want := domain.NormalizeCategory(category)
	out := make([]*domain.MemoryRecord, 0, len(all))
	for _, m := range all {
		if domain.NormalizeCategory(m.Category.Primary) != want {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) ListOlderThan(ctx context.Context, age time.Duration, agentID string, limit int) ([]*domain.MemoryRecord, error) {
	cutoff := time.Now().Add(-age)
	return s.list(ctx,
		`SELECT `+memoryColumns+` FROM memories
		 WHERE (? = '' OR agent_id = ?) AND created_at < ?
		 ORDER BY created_at DESC, id`+limitClause(limit),
		agentID, agentID, toUnixNano(cutoff),
	)
}

func (s *MemoryStore) CountByAgent(ctx context.Context, agentID string) (int, error) {
	var n int
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT count(*) FROM memories WHERE agent_id = ?`, agentID).Scan(&n)
	return n, err
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.sql.QueryRowContext(ctx, `SELECT count(*) FROM memories`).Scan(&n)
	return n, err
}

func (s *MemoryStore) list(ctx context.Context, query string, args ...any) ([]*domain.MemoryRecord, error) {
	rows, err := s.db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.MemoryRecord, 0)
	for rows.Next() {
		m, err := scanMemoryRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemoryRow(row rowScanner) (*domain.MemoryRecord, error) {
	m := &domain.MemoryRecord{}
	var categoryJSON, metadataJSON string
	var createdAt, lastAccessed int64
	var embeddingJSON *string

	err := row.Scan(
		&m.ID, &m.AgentID, &m.Content, &categoryJSON, &metadataJSON, &createdAt,
		&lastAccessed, &m.RelevanceScore, &m.Version, &m.AccessCount, &embeddingJSON, &m.EmbeddingNorm,
	)
	if err != nil {
		return nil, err
	}

	m.CreatedAt = fromUnixNano(createdAt)
	m.LastAccessed = fromUnixNano(lastAccessed)
	if err := decodeJSON(categoryJSON, &m.Category); err != nil {
		return nil, fmt.Errorf("unmarshal category: %w", err)
	}
	if err := decodeJSON(metadataJSON, &m.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if embeddingJSON != nil {
		if err := decodeJSON(*embeddingJSON, &m.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding: %w", err)
		}
	}
	return m, nil
}

func limitClause(limit int) string {
	if limit > 0 {
		return fmt.Sprintf(" LIMIT %d", limit)
	}
	return ""
}

// Verify interface compliance at compile time
var _ domain.MemoryStore = (*MemoryStore)(nil)
