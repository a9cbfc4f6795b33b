package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/doxalabs/doxa/internal/domain"
	"github.com/doxalabs/doxa/internal/similarity"
)

// EncoderService is the memory encoding engine: it validates content,
// assigns ids, generates embeddings when a provider is present, and
// persists records. Embedding failures are absorbed; the record is stored
// without a vector and similarity search falls back to text.
type EncoderService struct {
	memories  domain.MemoryStore
	embedder  domain.EmbeddingClient
	extractor domain.ExtractionClient
	cfg       domain.EngineConfig
	logger    *zap.Logger
}

func NewEncoderService(ms domain.MemoryStore, ec domain.EmbeddingClient, xc domain.ExtractionClient, cfg domain.EngineConfig, logger *zap.Logger) *EncoderService {
	return &EncoderService{
		memories:  ms,
		embedder:  ec,
		extractor: xc,
		cfg:       cfg,
		logger:    logger,
	}
}

// EncodeAndStore validates, embeds, and persists one memory, returning the
// stored record. Only storage failures propagate.
func (s *EncoderService) EncodeAndStore(ctx context.Context, content string, category domain.CategoryLabel, metadata map[string]any, agentID string) (*domain.MemoryRecord, error) {
	if err := s.validate(content, category, metadata, agentID); err != nil {
		return nil, err
	}

	now := time.Now()
	rec := &domain.MemoryRecord{
		ID:           domain.NewMemoryID(),
		AgentID:      agentID,
		Content:      content,
		Category:     category.Clone(),
		Metadata:     metadata,
		CreatedAt:    now,
		LastAccessed: now,
		Version:      1,
	}

	s.embed(ctx, rec)

	if err := s.memories.Put(ctx, rec); err != nil {
		s.logger.Error("memory persist failed",
			zap.String("memory_id", rec.ID),
			zap.String("agent_id", agentID),
			zap.Error(err))
		return nil, domain.StorageError("memory.put", err)
	}
	return rec, nil
}

// UpdateMemory re-embeds when content changed, bumps the version, and
// persists. The record must already exist.
func (s *EncoderService) UpdateMemory(ctx context.Context, rec *domain.MemoryRecord) (*domain.MemoryRecord, error) {
	if rec.ID == "" {
		return nil, domain.InvalidField("id", "is required for update", rec.ID)
	}
	if err := s.validate(rec.Content, rec.Category, rec.Metadata, rec.AgentID); err != nil {
		return nil, err
	}

	existing, err := s.memories.Get(ctx, rec.ID)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return nil, domain.NewError(domain.KindNotFound, "memory not found").
				WithDetail("memoryId", rec.ID)
		}
		return nil, domain.StorageError("memory.get", err)
	}

	updated := rec.Clone()
	updated.CreatedAt = existing.CreatedAt
	updated.Version = existing.Version + 1
	updated.LastAccessed = time.Now()

	if updated.Content != existing.Content {
		updated.Embedding = nil
		updated.EmbeddingNorm = 0
		s.embed(ctx, updated)
	} else {
		updated.Embedding = existing.Embedding
		updated.EmbeddingNorm = existing.EmbeddingNorm
	}

	if err := s.memories.Put(ctx, updated); err != nil {
		return nil, domain.StorageError("memory.put", err)
	}
	return updated, nil
}

// SearchSimilar ranks stored memories against a text query. With a healthy
// embedder the query is vectorized and scored with the configured metric;
// otherwise the store scores text with the provider's similarity, or token
// overlap as the last resort.
func (s *EncoderService) SearchSimilar(ctx context.Context, query string, limit int, agentID string) ([]domain.ScoredMemory, error) {
	if query == "" {
		return nil, domain.InvalidField("query", "must not be empty", query)
	}
	if limit <= 0 {
		limit = s.cfg.NeighborLookupK
	}

	q := domain.SimilarityQuery{
		Text:       query,
		AgentID:    agentID,
		Limit:      limit,
		Floor:      s.cfg.MemorySimilarityFloor,
		Metric:     s.cfg.SimilarityMetric,
		TextScorer: s.TextScorer(),
	}

	if s.embedder != nil && s.embedder.IsHealthy(ctx) {
		vec, err := s.embedder.Embed(ctx, query)
		if err != nil {
			s.logger.Warn("query embedding failed, falling back to text search", zap.Error(err))
		} else {
			q.Vector = vec
		}
	}

	out, err := s.memories.SearchSimilar(ctx, q)
	if err != nil {
		return nil, domain.StorageError("memory.search", err)
	}
	return out, nil
}

func (s *EncoderService) Get(ctx context.Context, id string) (*domain.MemoryRecord, error) {
	rec, err := s.memories.Get(ctx, id)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return nil, domain.NewError(domain.KindNotFound, "memory not found").
				WithDetail("memoryId", id)
		}
		return nil, domain.StorageError("memory.get", err)
	}
	return rec, nil
}

func (s *EncoderService) GetMany(ctx context.Context, ids []string) (map[string]*domain.MemoryRecord, error) {
	out, err := s.memories.GetMany(ctx, ids)
	if err != nil {
		return nil, domain.StorageError("memory.get_many", err)
	}
	return out, nil
}

func (s *EncoderService) Remove(ctx context.Context, id string) error {
	if err := s.memories.Remove(ctx, id); err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return domain.NewError(domain.KindNotFound, "memory not found").
				WithDetail("memoryId", id)
		}
		return domain.StorageError("memory.remove", err)
	}
	return nil
}

// RemoveMany deletes the given ids and reports which were actually removed.
// This is the interface the forgetting collaborator drives.
func (s *EncoderService) RemoveMany(ctx context.Context, ids []string) ([]string, error) {
	removed, err := s.memories.RemoveMany(ctx, ids)
	if err != nil {
		return nil, domain.StorageError("memory.remove_many", err)
	}
	return removed, nil
}

func (s *EncoderService) ListByAgent(ctx context.Context, agentID string, limit int) ([]*domain.MemoryRecord, error) {
	out, err := s.memories.ListByAgent(ctx, agentID, limit)
	if err != nil {
		return nil, domain.StorageError("memory.list", err)
	}
	return out, nil
}

func (s *EncoderService) ListByCategory(ctx context.Context, category, agentID string, limit int) ([]*domain.MemoryRecord, error) {
	out, err := s.memories.ListByCategory(ctx, category, agentID, limit)
	if err != nil {
		return nil, domain.StorageError("memory.list", err)
	}
	return out, nil
}

func (s *EncoderService) ListOlderThan(ctx context.Context, age time.Duration, agentID string, limit int) ([]*domain.MemoryRecord, error) {
	out, err := s.memories.ListOlderThan(ctx, age, agentID, limit)
	if err != nil {
		return nil, domain.StorageError("memory.list", err)
	}
	return out, nil
}

// TextScorer returns the statement scorer for text-path similarity:
// provider-backed when the extraction provider is healthy, token overlap
// otherwise.
func (s *EncoderService) TextScorer() domain.StatementScorer {
	return providerScorer(s.extractor, s.logger)
}

func providerScorer(extractor domain.ExtractionClient, logger *zap.Logger) domain.StatementScorer {
	return func(ctx context.Context, a, b string) (float64, error) {
		if extractor != nil && extractor.IsHealthy(ctx) {
			score, err := extractor.Similarity(ctx, a, b)
			if err == nil {
				return score, nil
			}
			logger.Warn("provider similarity failed, using token overlap", zap.Error(err))
		}
		return similarity.TokenOverlap(a, b), nil
	}
}

func (s *EncoderService) validate(content string, category domain.CategoryLabel, metadata map[string]any, agentID string) error {
	if agentID == "" {
		return domain.InvalidField("agentId", "must not be empty", agentID)
	}
	if content == "" {
		return domain.InvalidField("content", "must not be empty", content)
	}
	if len(content) > s.cfg.MaxContentLength {
		return domain.InvalidField("content", "exceeds maximum length", len(content)).
			WithDetail("max_length", s.cfg.MaxContentLength)
	}
	if category.Primary == "" {
		return domain.InvalidField("category", "primary must not be empty", category.Primary)
	}
	if metadata == nil {
		return domain.InvalidField("metadata", "must be present", nil)
	}
	return nil
}

// embed attaches a vector to rec when a healthy embedder is available.
// Failure is never fatal.
func (s *EncoderService) embed(ctx context.Context, rec *domain.MemoryRecord) {
	if s.embedder == nil {
		return
	}
	vec, err := s.embedder.Embed(ctx, rec.Content)
	if err != nil {
		s.logger.Warn("embedding generation failed, storing without vector",
			zap.String("memory_id", rec.ID),
			zap.Error(err))
		return
	}
	rec.Embedding = vec
	rec.EmbeddingNorm = similarity.Norm(vec)
}
