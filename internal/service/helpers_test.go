package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/doxalabs/doxa/internal/domain"
	"github.com/doxalabs/doxa/internal/embedding"
	"github.com/doxalabs/doxa/internal/extraction"
	"github.com/doxalabs/doxa/internal/inmem"
)

const testAgent = "agent-1"

// env wires every service over the in-memory backend with mock providers.
type env struct {
	db        *inmem.DB
	memories  *inmem.MemoryStore
	beliefs   *inmem.BeliefStore
	conflicts *inmem.ConflictStore
	graph     *inmem.GraphStore

	extractor *extraction.MockClient
	embedder  *embedding.MockClient
	counters  *Counters
	cfg       domain.EngineConfig

	categorizer   *CategorizationService
	encoder       *EncoderService
	analyzer      *AnalyzerService
	relationships *RelationshipService
	ingestion     *IngestionService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	cfg := domain.DefaultEngineConfig()
	cfg.EmbeddingDimension = 8

	db := inmem.Open()
	e := &env{
		db:        db,
		memories:  inmem.NewMemoryStore(db),
		beliefs:   inmem.NewBeliefStore(db),
		conflicts: inmem.NewConflictStore(db),
		graph:     inmem.NewGraphStore(db),
		extractor: extraction.NewMockClient(),
		embedder:  embedding.NewMockClient(cfg.EmbeddingDimension),
		counters:  NewCounters(),
		cfg:       cfg,
	}

	logger := zap.NewNop()
	e.categorizer = NewCategorizationService(e.extractor, logger)
	e.encoder = NewEncoderService(e.memories, e.embedder, e.extractor, cfg, logger)
	e.analyzer = NewAnalyzerService(e.beliefs, e.conflicts, e.extractor, cfg, e.counters, logger)
	e.relationships = NewRelationshipService(e.graph, e.beliefs, cfg, e.counters, logger)
	e.ingestion = NewIngestionService(e.categorizer, e.encoder, e.analyzer, cfg, logger)
	return e
}

// seedBelief stores an active belief and returns it.
func (e *env) seedBelief(t *testing.T, statement string, confidence float64, createdAt time.Time) *domain.Belief {
	t.Helper()
	b := &domain.Belief{
		ID:          domain.NewBeliefID(),
		AgentID:     testAgent,
		Statement:   statement,
		Confidence:  confidence,
		Category:    "preference",
		CreatedAt:   createdAt,
		LastUpdated: createdAt,
		Active:      true,
	}
	if err := e.beliefs.Put(context.Background(), b); err != nil {
		t.Fatalf("seed belief: %v", err)
	}
	return b
}

// seedMemory builds a stored memory record for analysis.
func (e *env) seedMemory(t *testing.T, content string) *domain.MemoryRecord {
	t.Helper()
	now := time.Now()
	m := &domain.MemoryRecord{
		ID:           domain.NewMemoryID(),
		AgentID:      testAgent,
		Content:      content,
		Category:     domain.CategoryLabel{Primary: "preference", Confidence: 0.9},
		Metadata:     map[string]any{},
		CreatedAt:    now,
		LastAccessed: now,
		Version:      1,
	}
	if err := e.memories.Put(context.Background(), m); err != nil {
		t.Fatalf("seed memory: %v", err)
	}
	return m
}

func approxEqual(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
